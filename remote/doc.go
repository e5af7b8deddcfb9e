// Package remote defines the file-transfer channel the engine is layered on and
// provides two implementations of it.
//
// # Contract
//
// A Channel is initialized once and then dials Sessions. A Session opens remote
// files in one of three modes and reports their size and modification time:
//
//	ch := remote.NewSSHChannel(remote.SSHOptions{KnownHostsFile: "~/.ssh/known_hosts"})
//	if err := ch.Init(); err != nil {
//	    // errors.Is(err, remote.ErrInit)
//	}
//	sess, err := ch.Dial(ctx, remote.ConnectionParams{
//	    Host: "10.0.0.5", Port: 22, Username: "backup", Password: "secret",
//	})
//
// Dial reports which step failed through ErrConnect, ErrHandshake, ErrAuth or
// ErrChannelInit.
//
// # Implementations
//
//   - SSHChannel: golang.org/x/crypto/ssh for the connection and password
//     authentication, github.com/pkg/sftp for the file subsystem.
//   - MemoryChannel: an in-memory remote filesystem with fault injection, used by
//     the engine tests.
package remote
