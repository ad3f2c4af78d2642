package main

import (
	"os"

	"github.com/carved4/phpext-inspect/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
