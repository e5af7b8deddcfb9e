// Package config loads sftptask settings.
//
// Settings come from Default, then an optional YAML file, then environment
// variables (optionally seeded from a .env file), then command-line flags
// applied by the caller through Merge:
//
//	host: sftp.example.com
//	port: 22
//	username: deploy
//	known_hosts: ~/.ssh/known_hosts
//	insecure_ignore_host_key: false
//	dial_timeout: 15s
//	chunk_size: 32768
//	cancel_check_interval: 1
//	log_level: info
//	log_file: /var/log/sftptask.log
//
// Host keys are always checked against known_hosts unless
// insecure_ignore_host_key (or SFTP_INSECURE_IGNORE_HOST_KEY) is set.
// The password is best supplied through SFTP_PASSWORD rather than the file.
package config
