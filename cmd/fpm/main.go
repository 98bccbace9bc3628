// Command fpm installs npm-registry packages into a project's
// node_modules, sharing package contents across projects through a
// content-addressed local store.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fpm-dev/fpm/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
