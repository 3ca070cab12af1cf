//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals abandon a run or stop a server.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
