package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:         "flashlink",
		HelpName:     "flashlink",
		Usage:        "A serial firmware and filesystem updater for flashlink devices.",
		Version:      fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:    "flashlink <command> [arguments...]",
		OnUsageError: usageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "flash",
				Aliases:                []string{"f"},
				Usage:                  "write a firmware or filesystem image to a device",
				Action:                 flash,
				OnUsageError:           usageErrorCallback,
				Flags:                  flashFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:         "info",
				Aliases:      []string{"i"},
				Usage:        "show device, storage and partition info",
				Action:       info,
				OnUsageError: usageErrorCallback,
				Flags:        connFlags,
			},
			{
				Name:    "ports",
				Aliases: []string{"p"},
				Usage:   "list serial ports present on this host",
				Action:  ports,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  help,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "prints installed version of flashlink",
				Action:  getVersion,
			},
		},
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	return app.Run(args)
}
