package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "dxfdiff",
		Usage: "Compare DXF drawings and track which drawing was derived from which",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: ".", Usage: "directory holding config.yaml"},
		},
		Commands: []*cli.Command{
			compareCommand(),
			extractCommand(),
			batchCommand(),
		},
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().Run(ctx, args); err != nil {
		log.Fatal(err)
	}
}
