package main

import (
	"os"

	"github.com/ariejan/apollo/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
