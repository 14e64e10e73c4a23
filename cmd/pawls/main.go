package main

import (
	"os"

	"github.com/hashicorp-forge/pawls/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
