package main

import "os"

// Build-time variables 'version', 'commit' and 'date' are declared in
// root.go and populated via -ldflags.

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
