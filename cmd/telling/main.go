package main

import (
	"os"

	"github.com/ThatSaxyDev/telling-logger-go/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
