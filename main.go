package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spiffcs/devexport/cmd"
)

func main() {
	err := cmd.New().Execute()
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(cmd.ExitAborted)
}
