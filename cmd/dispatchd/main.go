package main

import (
	"github.com/ledgerly/dispatch/internal/cli"
)

func main() {
	cli.Execute()
}
