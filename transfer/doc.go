// Package transfer implements a resumable single-file transfer engine on top of
// a remote.Channel.
//
// An Engine is initialized once, opens one session, and then runs at most one
// upload or download at a time on a background worker:
//
//	engine, err := transfer.NewEngine(remote.NewSSHChannel(remote.SSHOptions{}))
//	if err != nil {
//	    return err
//	}
//	if err := engine.Init(); err != nil {
//	    return err
//	}
//	if err := engine.StartSession(ctx, params); err != nil {
//	    return err
//	}
//	defer engine.StopSession()
//
//	result, err := engine.Upload("/data/a.bin", "/upload/a.bin", func(percent int) {
//	    fmt.Printf("%d%%\n", percent)
//	})
//	if err != nil {
//	    return err // ErrInvalidPath, ErrNotStarted or ErrBusy
//	}
//	n, err := result.Wait(ctx)
//
// The file is copied in chunks (1024 bytes unless WithChunkSize says otherwise).
// Partial writes are retried until the chunk is flushed. Progress is reported as
// whole percentages, each delivered once.
//
// When a transfer stops early, because of an I/O error or Cancel, the partial
// destination stays in place and a resume record (see package resume) is written
// next to the local file. The next transfer of the same pair continues from the
// size of the partial destination if neither file has been modified in between;
// otherwise it starts over. A completed transfer removes its record.
//
// An incomplete transfer resolves its Result with an *IncompleteError whose Cause
// is one of ErrLocalOpen, ErrRemoteOpen, ErrStat, ErrEmptyFile, ErrRead, ErrWrite
// or ErrCancelled.
package transfer
