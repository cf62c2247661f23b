package main

import (
	"os"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=x.y.z".
var version string

func main() {
	os.Exit(cli.Execute(version))
}
