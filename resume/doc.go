// Package resume persists the bookkeeping needed to continue an interrupted
// transfer.
//
// A Record names the local and remote file of a transfer together with the
// modification time of each at the moment the transfer stopped. It is stored as
// JSON in a file called transferInfo.json in the directory of the local file:
//
//	{"remote_path":"/upload/a.bin","remote_file_m_time":1767225600,
//	 "local_path":"/data/a.bin","local_file_m_time":1767225590}
//
// A later transfer of the same pair may continue from the size of the partial
// destination only when both paths match and neither modification time has
// changed. Anything else, including a missing or unreadable record, means the
// transfer starts over.
//
// The Store works on any go-billy filesystem, so tests can use memfs while the
// engine uses the OS filesystem.
package resume
