package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/flashlink/flashlink/pkg/flashlib"
)

func info(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil
	}
	stream, err := flashlib.OpenPort(serialConfig(cfg))
	if err != nil {
		printRuntimeErr(ctx, "info", "open_port", err)
		return nil
	}
	t := flashlib.NewTransport(stream, &flashlib.TransportOpts{
		ControlTimeout: cfg.ControlTimeout(),
		ChunkTimeout:   cfg.ChunkTimeout(),
		Logger:         commandLogger(),
	})
	u := flashlib.NewUpdater(t, &flashlib.UpdaterOpts{
		ConnectTimeout: cfg.ConnectTimeout(),
		Logger:         commandLogger(),
	})
	cctx := context.Background()
	if err := u.Connect(cctx); err != nil {
		printRuntimeErr(ctx, "info", "connect", err)
		return nil
	}
	defer u.Disconnect()

	di, err := u.Info(cctx)
	if err != nil {
		printRuntimeErr(ctx, "info", "device_info", err)
		return nil
	}
	fmt.Printf("Mode:    %s\nVersion: %s\n", di.Mode, di.Version)

	if st, err := u.Status(cctx); err == nil {
		fmt.Printf("State:   %s\nUpdate active: %v\n", st.State, st.UpdateActive)
	}
	if r, err := u.StorageInfo(cctx); err == nil {
		fmt.Printf("Storage: %s\n", string(r.Raw))
	}
	if r, err := u.PartitionInfo(cctx); err == nil {
		fmt.Printf("Partitions: %s\n", string(r.Raw))
	}
	return nil
}
