//go:build windows

package main

import "os"

// shutdownSignals abandon a run or stop a server. Windows has no SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
