package main

import (
	"context"
	"os"
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	os.Exit(handleError(err, os.Stdout, os.Stderr))
}
