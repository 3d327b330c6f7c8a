// Package process provides generic subprocess lifecycle management.
//
// This package is designed for managing a long-running child process such as
// the fullscreen video player the video engine drives over its IPC socket.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with configurable backoff
//   - Health monitoring and status reporting
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:               "mpv",
//	    Binary:             "/usr/bin/mpv",
//	    Args:               []string{"--idle", "--input-ipc-server=/tmp/room1-mpv.sock"},
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
