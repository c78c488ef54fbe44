package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robalb/mnodemo/internal/standalone"
)

// The entry point for the standalone webserver.
// This is just a wrapper around the
// actual launcher logic, a practice
// that simplifies writing e2e tests.
func main() {
	ctx := context.Background()
	if err := standalone.Run(ctx, os.Stdout, os.Stderr, os.Args, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
