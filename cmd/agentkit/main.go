package main

import (
	"os"

	"github.com/barysiuk/agentkit/cmd/agentkit/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
