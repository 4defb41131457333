package main

import (
	"os"

	"github.com/unkn0wn-root/availcache/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		os.Exit(1)
	}
}
