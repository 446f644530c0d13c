package main

import (
	"context"
	"log"
	"os"

	"github.com/anchorageoss/railsig/cmd"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func newApp(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "railsig",
		Usage: "Decode, sign and verify two-level signed rail ticket barcodes",
		Flags: []cli.Flag{
			cmd.LogLevelFlag(),
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, cmd.ConfigureLogger(logger, c.String("log-level"))
		},
		Commands: []*cli.Command{
			cmd.DecodeCommand(logger),
			cmd.VerifyCommand(logger),
			cmd.SignCommand(logger),
			cmd.RecoverKeyCommand(logger),
			cmd.KeygenCommand(),
		},
	}
}

func main() {
	if err := newApp(cmd.NewLogger()).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
