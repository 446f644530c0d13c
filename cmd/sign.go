package cmd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/keys"
	"github.com/anchorageoss/railsig/signing"
	"github.com/anchorageoss/railsig/ticket"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// TicketRequest is the JSON input of the sign command
type TicketRequest struct {
	Version             int     `json:"version"`
	SecurityProviderNum *uint32 `json:"securityProviderNum,omitempty"`
	SecurityProviderIA5 *string `json:"securityProviderIA5,omitempty"`
	KeyID               *uint32 `json:"keyId,omitempty"`
	EndOfValidityYear   *uint16 `json:"endOfValidityYear,omitempty"`
	EndOfValidityDay    *uint16 `json:"endOfValidityDay,omitempty"`
	EndOfValidityTime   *uint16 `json:"endOfValidityTime,omitempty"`
	ValidityDuration    *uint32 `json:"validityDuration,omitempty"`

	Ticket  *ticket.Body           `json:"ticket,omitempty"`
	Dynamic *ticket.DynamicContent `json:"dynamic,omitempty"`
}

// LoadTicketRequest reads a TicketRequest from a JSON file
func LoadTicketRequest(path string) (*TicketRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket file: %w", err)
	}
	var req TicketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse ticket file: %w", err)
	}
	if req.Version == 0 {
		req.Version = 2
	}
	if req.Ticket == nil {
		return nil, errors.New("ticket file has no ticket body")
	}
	return &req, nil
}

// level1Data encodes the payload blocks into Level 1 data
func (r *TicketRequest) level1Data() (envelope.Level1Data, *envelope.DataBlock, error) {
	body, err := ticket.EncodeBody(r.Ticket)
	if err != nil {
		return envelope.Level1Data{}, nil, err
	}

	l1 := envelope.Level1Data{
		SecurityProviderNum: r.SecurityProviderNum,
		SecurityProviderIA5: r.SecurityProviderIA5,
		KeyID:               r.KeyID,
		DataSequence:        []envelope.DataBlock{body},
		EndOfValidityYear:   r.EndOfValidityYear,
		EndOfValidityDay:    r.EndOfValidityDay,
		EndOfValidityTime:   r.EndOfValidityTime,
		ValidityDuration:    r.ValidityDuration,
	}

	var dynamic *envelope.DataBlock
	if r.Dynamic != nil {
		block, err := ticket.EncodeDynamicContent(r.Dynamic)
		if err != nil {
			return envelope.Level1Data{}, nil, err
		}
		dynamic = &block
	}
	return l1, dynamic, nil
}

// SignCommand creates the sign command
func SignCommand(logger logrus.FieldLogger) *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Encode and sign a barcode from a JSON ticket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ticket",
				Usage:    "Path to the JSON ticket request",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "level1-key",
				Usage:    "Path to the Level 1 private key file (hexkey:curve)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "level2-key",
				Usage: "Path to the Level 2 private key file; omit for a static barcode",
			},
			&cli.BoolFlag{
				Name:  "legacy",
				Usage: "Sign with the two-pass placeholder method",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write the binary barcode to this path",
			},
			&cli.BoolFlag{
				Name:  "base64",
				Usage: "Print the barcode as base64 instead of hex",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runSignCommand(ctx, cmd, logger)
		},
	}
}

func runSignCommand(ctx context.Context, cmd *cli.Command, logger logrus.FieldLogger) error {
	req, err := LoadTicketRequest(cmd.String("ticket"))
	if err != nil {
		return err
	}

	level1Key, err := keys.LoadPrivateKey(cmd.String("level1-key"))
	if err != nil {
		return fmt.Errorf("failed to load level 1 key: %w", err)
	}
	level1, err := signing.NewECDSASigner(level1Key)
	if err != nil {
		return err
	}

	var level2 signing.Signer
	if path := cmd.String("level2-key"); path != "" {
		level2Key, err := keys.LoadPrivateKey(path)
		if err != nil {
			return fmt.Errorf("failed to load level 2 key: %w", err)
		}
		level2, err = signing.NewECDSASigner(level2Key)
		if err != nil {
			return err
		}
	}

	barcode, err := signTicket(req, level1, level2, cmd.Bool("legacy"))
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"bytes":  len(barcode),
		"legacy": cmd.Bool("legacy"),
		"static": level2 == nil,
	}).Debug("signed barcode")

	fmt.Fprintf(os.Stderr, "✓ Signed %s barcode (%d bytes)\n", envelope.VersionTag(req.Version), len(barcode))
	if level2 == nil {
		fmt.Fprintf(os.Stderr, "✓ Static barcode: no Level 2 signature\n")
	}

	if out := cmd.String("out"); out != "" {
		if err := os.WriteFile(out, barcode, 0o644); err != nil {
			return fmt.Errorf("failed to write barcode: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Barcode written to %s\n", out)
	}

	if cmd.Bool("base64") {
		fmt.Println(base64.StdEncoding.EncodeToString(barcode))
	} else {
		fmt.Println(hex.EncodeToString(barcode))
	}
	return nil
}

// signTicket composes the barcode, or signs the typed envelope in two passes when legacy is set
func signTicket(req *TicketRequest, level1, level2 signing.Signer, legacy bool) ([]byte, error) {
	l1, dynamic, err := req.level1Data()
	if err != nil {
		return nil, err
	}

	if legacy {
		env := &envelope.Envelope{
			Format: envelope.VersionTag(req.Version),
			Level2SignedData: envelope.Level2SignedData{
				Level1Data: l1,
				Level2Data: dynamic,
			},
		}
		barcode, _, err := signing.SignAndEncodeTicket(env, level1, level2)
		if err != nil {
			return nil, fmt.Errorf("failed to sign ticket: %w", err)
		}
		return barcode, nil
	}

	composed, err := signing.Compose(&signing.Request{
		Version:    req.Version,
		Level1:     l1,
		Level2Data: dynamic,
	}, level1, level2)
	if err != nil {
		return nil, fmt.Errorf("failed to sign ticket: %w", err)
	}
	return composed.Barcode, nil
}
