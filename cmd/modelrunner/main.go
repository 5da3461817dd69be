package main

import (
	"context"
	"os"

	"modelrunner/internal/cli"
)

func main() {
	os.Exit(cli.Main(context.Background()))
}
