// PID locking and signal handling on Windows.

//go:build windows

package main

import (
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/windows"
)

// ///////////////////////////////////////////////
// File Locking
// ///////////////////////////////////////////////

// lockFile locks the first byte of f with LockFileEx. Failing immediately
// matches LOCK_NB on Unix.
func lockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if err != nil {
		return fmt.Errorf("lock file %s: %w", f.Name(), err)
	}
	return nil
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol); err != nil {
		return fmt.Errorf("unlock file %s: %w", f.Name(), err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// signalChannel delivers os.Interrupt. The runtime also maps CTRL_BREAK and
// console close to it.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch
}

// reloadChannel returns nil: Windows has no SIGHUP, so config reloads come
// from the file watcher alone.
func reloadChannel() <-chan os.Signal {
	return nil
}
