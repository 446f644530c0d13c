package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/ticket"
	"github.com/anchorageoss/railsig/verify"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// DecodeCommand creates the decode command
func DecodeCommand(logger logrus.FieldLogger) *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a barcode payload and show its signed regions",
		ArgsUsage: "[hex]",
		Flags: append(barcodeInputFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDecodeCommand(ctx, cmd, logger)
		},
	}
}

func runDecodeCommand(ctx context.Context, cmd *cli.Command, logger logrus.FieldLogger) error {
	asJSON := cmd.Bool("json")

	barcode, err := readBarcode(cmd)
	if err != nil {
		return err
	}
	logger.WithField("bytes", len(barcode)).Debug("decoding barcode")

	regions, err := envelope.Extract(barcode)
	if err != nil {
		return fmt.Errorf("failed to decode barcode: %w", err)
	}
	env, err := envelope.Decode(barcode)
	if err != nil {
		return fmt.Errorf("failed to decode barcode: %w", err)
	}

	blocks := ticket.DecodeBlocks(env.Level2SignedData.Level1Data.DataSequence)
	if d := env.Level2SignedData.Level2Data; d != nil {
		blocks = append(blocks, ticket.DecodeBlock(*d))
	}
	for _, b := range blocks {
		if b.Err != nil {
			logger.WithError(b.Err).WithField("tag", b.Tag).Info("data block not decoded")
		}
	}

	formatter := verify.NewFormatter()
	l1Hash := envelope.ComputeHash(regions.Level1Data.Bytes)
	l2Hash := envelope.ComputeHash(regions.Level2SignedData.Bytes)

	if asJSON {
		output := formatter.FormatMetadataJSON(regions.Metadata)
		output["hash"] = envelope.ComputeHash(barcode)
		output["regions"] = []map[string]interface{}{
			{"name": envelope.FieldLevel1Data, "start": regions.Level1Data.Start, "end": regions.Level1Data.End, "sha256": l1Hash},
			{"name": envelope.FieldLevel2SignedData, "start": regions.Level2SignedData.Start, "end": regions.Level2SignedData.End, "sha256": l2Hash},
		}
		output["blocks"] = formatter.FormatBlocksJSON(blocks)

		jsonBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	// Text output
	fmt.Printf("=== Barcode ===\n")
	fmt.Printf("Format: %s\n", env.Format)
	fmt.Printf("Size: %d bytes\n", len(barcode))
	fmt.Printf("Hash: %s\n", envelope.ComputeHash(barcode))
	fmt.Print(formatter.FormatMetadata(regions.Metadata, ""))

	fmt.Printf("\nSigned regions:\n")
	fmt.Printf("  %s: [%d, %d) sha256 %s\n", envelope.FieldLevel1Data, regions.Level1Data.Start, regions.Level1Data.End, l1Hash)
	fmt.Printf("  %s: [%d, %d) sha256 %s\n", envelope.FieldLevel2SignedData, regions.Level2SignedData.Start, regions.Level2SignedData.End, l2Hash)

	fmt.Printf("\nData blocks:\n")
	for _, b := range blocks {
		fmt.Print(formatter.FormatBlock(b, "  "))
	}

	return nil
}
