package main

import (
	"os"

	"codemcp/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
