package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	"github.com/flashlink/flashlink/internal/config"
	"github.com/flashlink/flashlink/pkg/flashlib"
	"github.com/flashlink/flashlink/pkg/logger"
)

var (
	portName    string
	baudRate    int
	flowControl string
	configPath  string
	updateType  string
	chunkSize   int
	verbose     bool

	connFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "port, p",
			Usage:       "serial port of the device (e.g. /dev/ttyUSB0)",
			Destination: &portName,
		},
		cli.IntFlag{
			Name:        "baud, b",
			Usage:       "serial baud rate",
			Destination: &baudRate,
		},
		cli.StringFlag{
			Name:        "flow-control, F",
			Usage:       "serial flow control (only \"none\" is supported)",
			Destination: &flowControl,
		},
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path to a flashlink config file",
			Destination: &configPath,
		},
		cli.BoolFlag{
			Name:        "verbose, V",
			Usage:       "log protocol diagnostics to stderr",
			Destination: &verbose,
		},
	}

	flashFlags = append([]cli.Flag{
		cli.StringFlag{
			Name:        "type, t",
			Usage:       "update type: firmware or filesystem (inferred from the file name if not set)",
			Destination: &updateType,
		},
		cli.IntFlag{
			Name:        "chunk-size, s",
			Usage:       "transfer chunk size in bytes",
			Destination: &chunkSize,
		},
	}, connFlags...)
)

func flash(ctx *cli.Context) error {
	fileName := ctx.Args().First()
	if fileName == "" {
		return printErrWithCmdHelp(ctx, errors.New("no image file provided"))
	}
	if fileName == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil
	}
	data, typ, err := loadImage(imageFs, fileName, updateType)
	if err != nil {
		printRuntimeErr(ctx, "flash", "load_image", err)
		return nil
	}

	stream, err := flashlib.OpenPort(serialConfig(cfg))
	if err != nil {
		printRuntimeErr(ctx, "flash", "open_port", err)
		return nil
	}

	l := commandLogger()
	p := mpb.New(mpb.WithWidth(64))
	bar := initBar(p, "Flashing", int64(len(data)))

	t := flashlib.NewTransport(stream, &flashlib.TransportOpts{
		ControlTimeout: cfg.ControlTimeout(),
		ChunkTimeout:   cfg.ChunkTimeout(),
		Logger:         l,
	})
	u := flashlib.NewUpdater(t, &flashlib.UpdaterOpts{
		ChunkSize:       cfg.Transfer.ChunkSize,
		ErrorCeiling:    cfg.Transfer.ErrorCeiling,
		MaxAttempts:     cfg.Transfer.MaxAttempts,
		ConnectTimeout:  cfg.ConnectTimeout(),
		InterChunkDelay: cfg.InterChunkDelay(),
		Logger:          l,
		Handlers: &flashlib.Handlers{
			ProgressHandler: func(percent float64, sent, total int64) {
				bar.SetCurrent(sent)
			},
			UpdateStatusHandler: func(status flashlib.UpdateStatus, message string) {
				switch status {
				case flashlib.UpdateStatusSucceeded:
					bar.SetCurrent(int64(len(data)))
					fmt.Printf("\n%s\n", message)
				case flashlib.UpdateStatusFailed, flashlib.UpdateStatusAborted:
					bar.Abort(false)
					fmt.Printf("\n%s\n", message)
				}
			},
		},
	})

	cctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		fmt.Println("\ninterrupted, aborting update...")
		if aerr := u.AbortUpdate(); aerr != nil {
			cancel()
		}
	}()

	if err := u.Connect(cctx); err != nil {
		printRuntimeErr(ctx, "flash", "connect", err)
		return nil
	}
	defer u.Disconnect()

	fmt.Printf(">> Flashing %s (%d bytes, %s) <<\n", fileName, len(data), typ)
	if err := u.StartUpdate(cctx, data, typ); err != nil {
		printRuntimeErr(ctx, "flash", "update", err)
		return nil
	}
	p.Wait()
	return nil
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		printRuntimeErr(ctx, ctx.Command.Name, "config", err)
		return nil, err
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate != 0 {
		cfg.Serial.BaudRate = baudRate
	}
	if flowControl != "" {
		cfg.Serial.FlowControl = flowControl
	}
	if chunkSize != 0 {
		cfg.Transfer.ChunkSize = chunkSize
	}
	if cfg.Serial.Port == "" {
		err = errors.New("no serial port configured (use --port)")
		printRuntimeErr(ctx, ctx.Command.Name, "config", err)
		return nil, err
	}
	return cfg, nil
}

func serialConfig(cfg *config.Config) flashlib.SerialConfig {
	return flashlib.SerialConfig{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		DataBits:    cfg.Serial.DataBits,
		StopBits:    cfg.Serial.StopBits,
		Parity:      cfg.Serial.Parity,
		FlowControl: cfg.Serial.FlowControl,
	}
}

func commandLogger() logger.Logger {
	if verbose {
		return logger.NewStandardLogger(log.New(os.Stderr, "flashlink ", log.LstdFlags))
	}
	return logger.NewNopLogger()
}
