package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global logger to use standard error, mirroring the
	// convention that informational progress output goes to standard
	// output while diagnostics go to standard error.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime)
}
