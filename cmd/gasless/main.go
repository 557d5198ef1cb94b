package main

import (
	"os"

	"github.com/kbizikav/gasless-gas-station/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
