package main

import (
	"os"

	"github.com/tracelab/bimanip/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
