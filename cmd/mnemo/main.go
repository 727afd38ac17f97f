package main

// @title mnemo API
// @version 1.0
// @description Persistent memory substrate with decay-weighted, scope-aware retrieval.

// @BasePath /
// @schemes http https

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
