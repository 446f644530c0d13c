package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/anchorageoss/railsig/api"
	"github.com/anchorageoss/railsig/keys"
	"github.com/anchorageoss/railsig/verify"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const keyServerTimeout = 10 * time.Second

// VerifyCommand creates the verify command
func VerifyCommand(logger logrus.FieldLogger) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify both signature levels of a barcode",
		ArgsUsage: "[hex]",
		Flags: append(barcodeInputFlags(),
			&cli.StringFlag{
				Name:  "level1-key",
				Usage: "Path to the Level 1 public key (raw point, SPKI or certificate; DER, PEM, hex or base64)",
			},
			&cli.StringFlag{
				Name:    "key-directory",
				Usage:   "Path to a JSON key directory used when --level1-key is not given",
				Sources: cli.EnvVars("RAILSIG_KEY_DIRECTORY"),
			},
			&cli.StringFlag{
				Name:    "key-server",
				Usage:   "Key server URL consulted after the key directory",
				Sources: cli.EnvVars("RAILSIG_KEY_SERVER"),
			},
			&cli.StringFlag{
				Name:    "key-server-key",
				Usage:   "Path to a P-256 private key file (hexkey:curve) used to stamp key server requests",
				Sources: cli.EnvVars("RAILSIG_KEY_SERVER_KEY"),
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runVerifyCommand(ctx, cmd, logger)
		},
	}
}

func runVerifyCommand(ctx context.Context, cmd *cli.Command, logger logrus.FieldLogger) error {
	// Extract flags
	level1KeyPath := cmd.String("level1-key")
	directoryPath := cmd.String("key-directory")

	barcode, err := readBarcode(cmd)
	if err != nil {
		return err
	}

	var level1Key []byte
	if level1KeyPath != "" {
		level1Key, err = keys.LoadPublicKeyFile(level1KeyPath)
		if err != nil {
			return fmt.Errorf("failed to load level 1 key: %w", err)
		}
	}

	directory, err := keyDirectory(directoryPath, cmd.String("key-server"), cmd.String("key-server-key"))
	if err != nil {
		return err
	}
	if level1Key == nil && directory == nil {
		return errors.New("either --level1-key, --key-directory or --key-server must be provided")
	}
	logger.WithFields(logrus.Fields{
		"bytes":         len(barcode),
		"level1Key":     level1KeyPath,
		"key-directory": directoryPath,
	}).Debug("verifying barcode")

	// Perform verification
	service := verify.NewService(directory)
	result, err := service.Verify(ctx, &verify.VerifyRequest{
		Barcode:         barcode,
		Level1PublicKey: level1Key,
	})
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	formatter := verify.NewFormatter()

	// Print to stderr for debugging/logging
	fmt.Fprintf(os.Stderr, "\n=== STEP 1: Decode Envelope ===\n")
	fmt.Fprintf(os.Stderr, "✓ Version: U%d\n", result.Version)
	fmt.Fprintf(os.Stderr, "✓ Provider: %s\n", result.Provider)
	for _, r := range result.Regions {
		fmt.Fprintf(os.Stderr, "✓ %s: [%d, %d) sha256 %s\n", r.Name, r.Start, r.End, r.SHA256)
	}

	fmt.Fprintf(os.Stderr, "\n=== STEP 2: Verify Level 1 ===\n")
	fmt.Fprint(os.Stderr, formatter.FormatLevel("Level 1", result.Level1))

	fmt.Fprintf(os.Stderr, "\n=== STEP 3: Verify Level 2 ===\n")
	fmt.Fprint(os.Stderr, formatter.FormatLevel("Level 2", result.Level2))

	if len(result.Blocks) > 0 {
		fmt.Fprintf(os.Stderr, "\n=== Data Blocks ===\n")
		for _, b := range result.Blocks {
			fmt.Fprint(os.Stderr, formatter.FormatBlock(b, "  "))
		}
	}

	if result.Valid {
		fmt.Fprintf(os.Stderr, "\n=== VERIFICATION COMPLETE ===\n")
		fmt.Fprintf(os.Stderr, "✓ All present signatures are valid\n")
	}

	// Output JSON result to stdout
	jsonOutput, err := json.MarshalIndent(formatter.FormatVerificationResult(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(jsonOutput))

	if !result.Valid {
		return errors.New("barcode signature is not valid")
	}
	return nil
}

// keyDirectory chains the configured key sources, or returns nil when there are none
func keyDirectory(directoryPath, serverURL, serverKeyPath string) (keys.Directory, error) {
	var chain keys.Chain
	if directoryPath != "" {
		chain = append(chain, &keys.FileDirectory{Path: directoryPath})
	}
	if serverURL != "" {
		var apiKey *api.APIKey
		if serverKeyPath != "" {
			privateKey, err := keys.LoadPrivateKey(serverKeyPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load key server API key: %w", err)
			}
			apiKey, err = api.NewAPIKey(privateKey)
			if err != nil {
				return nil, err
			}
		}
		chain = append(chain, api.NewClient(serverURL, &http.Client{Timeout: keyServerTimeout}, apiKey))
	}

	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}
