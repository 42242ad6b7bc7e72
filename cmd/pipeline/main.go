// Command pipeline runs the drone pipeline: an orchestrator that wires the
// heartbeat, telemetry and command workers, watches their output and shuts
// everything down in order.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
