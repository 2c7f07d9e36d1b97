package main

import (
	"github.com/flexpertsdev/flexios-v1/cmd"
	"github.com/flexpertsdev/flexios-v1/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
