package signing

import (
	"errors"
	"fmt"

	"github.com/anchorageoss/railsig/envelope"
)

// Request is the content of a barcode to compose
type Request struct {
	Version int
	// Level1 carries the provider, key id, data sequence and validity. Its
	// algorithm fields and Level 2 public key are filled from the signers.
	Level1     envelope.Level1Data
	Level2Data *envelope.DataBlock
}

// Composed holds every intermediate of a composed barcode
type Composed struct {
	Level1Data       envelope.RawBlock
	Level1Signature  []byte
	Level2SignedData envelope.RawBlock
	// Level2Signature is nil for a static barcode
	Level2Signature []byte
	Barcode         []byte
}

// Compose builds and signs a barcode bottom-up:
//
//  1. Level 1 data is encoded and signed by level1
//  2. Level 2 signed data splices the Level 1 bytes and signature, and is signed by level2
//  3. The envelope splices the Level 2 bytes and signature
//
// With a nil level2 the barcode is static and carries no Level 2 signature.
func Compose(req *Request, level1, level2 Signer) (*Composed, error) {
	if req == nil {
		return nil, errors.New("compose request is required")
	}
	if level1 == nil {
		return nil, errors.New("level 1 signer is required")
	}

	l1 := req.Level1.Clone()
	applySigners(&l1, level1, level2)

	l1Block, err := envelope.EncodeLevel1Data(req.Version, &l1)
	if err != nil {
		return nil, fmt.Errorf("failed to encode level 1 data: %w", err)
	}
	l1Sig, err := level1.Sign(l1Block.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign level 1 data: %w", err)
	}

	l2Block, err := envelope.EncodeLevel2SignedData(l1Block, l1Sig, req.Level2Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode level 2 signed data: %w", err)
	}

	var l2Sig []byte
	if level2 != nil {
		l2Sig, err = level2.Sign(l2Block.Bytes())
		if err != nil {
			return nil, fmt.Errorf("failed to sign level 2 signed data: %w", err)
		}
	}

	barcode, err := envelope.EncodeEnvelope(l2Block, l2Sig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return &Composed{
		Level1Data:       l1Block,
		Level1Signature:  l1Sig,
		Level2SignedData: l2Block,
		Level2Signature:  l2Sig,
		Barcode:          barcode,
	}, nil
}

// applySigners writes the algorithm identifiers of the signers and the Level 2
// public key into Level 1 data
func applySigners(l1 *envelope.Level1Data, level1, level2 Signer) {
	l1.Level1SigningAlg = envelope.Ptr(level1.Algorithm().OID)
	l1.Level1KeyAlg = envelope.Ptr(level1.KeyAlgorithm().OID)
	if level2 == nil {
		return
	}
	l1.Level2SigningAlg = envelope.Ptr(level2.Algorithm().OID)
	l1.Level2KeyAlg = envelope.Ptr(level2.KeyAlgorithm().OID)
	l1.Level2PublicKey = envelope.BytesPtr(level2.PublicKey())
}
