// Command docket operates docket queues and runs shell workers against them.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	a := newApp()
	err := a.rootCmd().Execute()
	if err = errors.Join(err, a.close()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
