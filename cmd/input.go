package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// barcodeInputFlags are the ways a barcode payload can be passed to a command
func barcodeInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "hex",
			Usage: "Hex-encoded barcode payload",
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "Path to binary barcode payload",
		},
		&cli.StringFlag{
			Name:  "base64",
			Usage: "Base64-encoded barcode payload",
		},
	}
}

// readBarcode returns the payload given by exactly one of --hex, --file, --base64
// or a single hex argument
func readBarcode(cmd *cli.Command) ([]byte, error) {
	hexInput := cmd.String("hex")
	filePath := cmd.String("file")
	b64 := cmd.String("base64")
	if hexInput == "" && cmd.Args().Len() == 1 {
		hexInput = cmd.Args().First()
	}

	given := 0
	for _, v := range []string{hexInput, filePath, b64} {
		if v != "" {
			given++
		}
	}
	if given == 0 {
		return nil, errors.New("either --hex, --file or --base64 must be provided")
	}
	if given > 1 {
		return nil, errors.New("only one of --hex, --file or --base64 should be provided")
	}

	switch {
	case filePath != "":
		return envelope.ReadFile(filePath)
	case b64 != "":
		return envelope.DecodeBase64(b64)
	default:
		return envelope.DecodeHex(hexInput)
	}
}

// LogLevelFlag selects the logrus level for diagnostics
func LogLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (panic, fatal, error, warn, info, debug, trace)",
		Value:   "warn",
		Sources: cli.EnvVars("RAILSIG_LOG_LEVEL"),
	}
}

// NewLogger creates the stderr logger shared by all commands
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// ConfigureLogger applies a --log-level value
func ConfigureLogger(logger *logrus.Logger, level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(lvl)
	return nil
}
