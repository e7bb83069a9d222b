package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/forPelevin/tubebite/internal/cli"
)

func main() {
	cli.Main()
}
