package main

import (
	"errors"
	"fmt"
	"os"

	"stock-pattern/internal/cli"
	"stock-pattern/internal/config"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, config.ErrTemplateCreated) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
