package main

import (
	"github.com/m-mizutani/conductor/cmd/conductor/cmd"
)

func main() {
	cmd.Execute()
}
