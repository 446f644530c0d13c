package cmd

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/keys"
	"github.com/urfave/cli/v3"
)

// KeygenCommand creates the keygen command
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a signing key pair",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "curve",
				Usage: "Curve of the key (p256, p384, p521)",
				Value: "p256",
			},
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Path prefix; writes <out>.private and <out>.public",
				Required: true,
			},
		},
		Action: runKeygenCommand,
	}
}

func runKeygenCommand(ctx context.Context, cmd *cli.Command) error {
	curve, err := keys.CurveFromFileName(cmd.String("curve"))
	if err != nil {
		return err
	}
	out := cmd.String("out")

	key, err := generateKey(curve)
	if err != nil {
		return err
	}

	if err := keys.WritePrivateKey(out+".private", key); err != nil {
		return err
	}
	if err := keys.WritePublicKey(out+".public", &key.PublicKey); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Generated %s key\n", curve.Name)
	fmt.Fprintf(os.Stderr, "✓ Private key: %s.private\n", out)
	fmt.Fprintf(os.Stderr, "✓ Public key: %s.public\n", out)
	fmt.Printf("%x\n", crypto.MarshalPoint(&key.PublicKey))
	return nil
}

func generateKey(curve *crypto.Curve) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(curve.Elliptic(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
