package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robalb/mnodemo/internal/webapp"
)

// The entry point for the framework managed webapp.
// Lifecycle is owned by cobra and gin.
func main() {
	ctx := context.Background()
	if err := webapp.Execute(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
