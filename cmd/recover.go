package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/recovery"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// RecoverKeyCommand creates the recover-key command
func RecoverKeyCommand(logger logrus.FieldLogger) *cli.Command {
	return &cli.Command{
		Name:      "recover-key",
		Usage:     "Recover the Level 1 public key from one or more barcodes signed by it",
		ArgsUsage: "<hex> [<hex>...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runRecoverKeyCommand(ctx, cmd, logger)
		},
	}
}

func runRecoverKeyCommand(ctx context.Context, cmd *cli.Command, logger logrus.FieldLogger) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return errors.New("at least one hex barcode must be provided")
	}

	inputs := make([]recovery.Input, 0, len(args))
	for i, arg := range args {
		barcode, err := envelope.DecodeHex(arg)
		if err != nil {
			return fmt.Errorf("barcode %d: %w", i+1, err)
		}
		input, err := recovery.InputFromBarcode(barcode)
		if err != nil {
			return fmt.Errorf("barcode %d: %w", i+1, err)
		}
		inputs = append(inputs, *input)
	}

	recoverer := &recovery.Recoverer{Logger: logger}
	result, err := recoverer.Recover(inputs)
	if result != nil {
		for i, in := range result.Inputs {
			fmt.Fprintf(os.Stderr, "Barcode %d: %d candidate key(s)\n", i+1, len(in.Candidates))
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
		}
	}
	if err != nil {
		return fmt.Errorf("key recovery failed: %w", err)
	}

	keyHex := make([]string, len(result.Keys))
	for i, k := range result.Keys {
		keyHex[i] = hex.EncodeToString(k)
	}

	if result.Ambiguous() {
		fmt.Fprintf(os.Stderr, "ℹ️  %d keys verify every barcode; add another barcode to narrow them down\n", len(result.Keys))
	} else {
		fmt.Fprintf(os.Stderr, "✓ Recovered a single key from %d barcode(s)\n", len(inputs))
	}

	jsonOutput, err := json.MarshalIndent(map[string]interface{}{
		"keys":      keyHex,
		"ambiguous": result.Ambiguous(),
		"warnings":  result.Warnings,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(jsonOutput))
	return nil
}
