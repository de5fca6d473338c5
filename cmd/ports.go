package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/flashlink/flashlink/pkg/flashlib"
)

func ports(ctx *cli.Context) error {
	list, err := flashlib.ListPorts()
	if err != nil {
		printRuntimeErr(ctx, "ports", "list", err)
		return nil
	}
	if len(list) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range list {
		fmt.Println(p)
	}
	return nil
}
