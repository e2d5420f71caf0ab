package main

import (
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/stackhand/novactl"
	"github.com/stackhand/novactl/config"
)

func main() {
	app := cli.NewApp()
	app.Name = "novactl"
	app.Usage = "OpenStack compute and block storage from the command line"
	app.Version = novactl.VersionString

	app.Flags = config.Flags
	app.Commands = novactl.Commands()

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
