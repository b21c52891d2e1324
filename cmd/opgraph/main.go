package main

import (
	"fmt"
	"os"
)

func main() {
	app := newAppContext(os.Stderr)
	if err := newRootCmd(app).Execute(); err != nil {
		app.Buffer.Flush(app.fallbackLogger())
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
