// PID locking and signal handling on Linux, macOS, and the BSDs.

//go:build !windows

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// File Locking
// ///////////////////////////////////////////////

// lockFile takes a non-blocking exclusive flock(2) on f. EWOULDBLOCK means
// another daemon owns the data directory.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("lock file %s: %w", f.Name(), err)
	}
	return nil
}

// unlockFile releases the flock on f. Closing f releases it too.
func unlockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unlock file %s: %w", f.Name(), err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// signalChannel delivers SIGINT and SIGTERM, the stop requests sent by a
// terminal, systemd, or a container runtime.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

// reloadChannel delivers SIGHUP, which re-reads config.toml.
func reloadChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	return ch
}
