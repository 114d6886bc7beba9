package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/arthur-debert/homemigrate/pkg/output"

	// Import packages to ensure their init() functions are called for registration
	_ "github.com/arthur-debert/homemigrate/pkg/migratables/files"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		styles := output.DefaultStyles(os.Stderr)
		fmt.Fprintln(os.Stderr, styles.Render("Error", fmt.Sprintf("Error: %v", err)))
		stop()
		os.Exit(1)
	}
}
