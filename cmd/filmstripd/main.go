// Command filmstripd runs the render daemon in the foreground. It is the
// entrypoint to use under a process supervisor; interactive use normally goes
// through `filmstrip start`, which launches the same runtime detached.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"filmstrip/internal/config"
	"filmstrip/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
