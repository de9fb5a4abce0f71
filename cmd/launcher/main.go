package main

import (
	"fmt"
	"os"

	"github.com/GriffinCanCode/eggprofit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
