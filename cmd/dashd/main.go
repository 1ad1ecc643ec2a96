// Command dashd is the home-server dashboard daemon. It loads the
// automation catalogue and serves the HTTP control surface and event
// stream.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}
