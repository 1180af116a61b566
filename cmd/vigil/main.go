package main

import (
	"os"

	"github.com/vigil-proxy/vigil/cmd/vigil/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
