package signing

import (
	"errors"
	"fmt"

	"github.com/anchorageoss/railsig/envelope"
)

// SignLevel1 sets the Level 1 signature of env. Level 1 data precedes its signature,
// so the signed region is located by encoding with a zero placeholder signature.
// env is left untouched on failure.
func SignLevel1(env *envelope.Envelope, s Signer) error {
	if s == nil {
		return errors.New("level 1 signer is required")
	}
	return signLevel1(env, s, s.MaxSignatureLength())
}

func signLevel1(env *envelope.Envelope, s Signer, placeholderLength int) error {
	work := env.Clone()
	work.Level2SignedData.Level1Signature = envelope.Ptr(make([]byte, placeholderLength))

	region, err := locate(work, func(r *envelope.SignedRegions) []byte { return r.Level1Data.Bytes })
	if err != nil {
		return err
	}
	sig, err := s.Sign(region)
	if err != nil {
		return fmt.Errorf("failed to sign level 1 data: %w", err)
	}

	env.Level2SignedData.Level1Signature = &sig
	return nil
}

// SignLevel2 sets the Level 2 signature of env. The Level 1 signature must already
// be set, otherwise ErrSequence is returned and env is left untouched.
func SignLevel2(env *envelope.Envelope, s Signer) error {
	if s == nil {
		return errors.New("level 2 signer is required")
	}
	return signLevel2(env, s, s.MaxSignatureLength())
}

func signLevel2(env *envelope.Envelope, s Signer, placeholderLength int) error {
	if sig := env.Level2SignedData.Level1Signature; sig == nil || len(*sig) == 0 {
		return fmt.Errorf("%w: level 1 signature must be set before level 2 is signed", ErrSequence)
	}

	work := env.Clone()
	work.Level2Signature = envelope.Ptr(make([]byte, placeholderLength))

	region, err := locate(work, func(r *envelope.SignedRegions) []byte { return r.Level2SignedData.Bytes })
	if err != nil {
		return err
	}
	sig, err := s.Sign(region)
	if err != nil {
		return fmt.Errorf("failed to sign level 2 signed data: %w", err)
	}

	env.Level2Signature = &sig
	return nil
}

// locate encodes env and returns one of its signed regions
func locate(env *envelope.Envelope, pick func(*envelope.SignedRegions) []byte) ([]byte, error) {
	b, err := envelope.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	regions, err := envelope.Extract(b)
	if err != nil {
		return nil, fmt.Errorf("failed to extract signed regions: %w", err)
	}
	return pick(regions), nil
}

// SignAndEncodeTicket signs a typed envelope at both levels and encodes it. The
// algorithm fields and Level 2 public key are taken from the signers. With a nil
// level2 the barcode is static and its Level 2 signature is absent. env itself is
// not modified; the signed copy is returned with the encoding.
func SignAndEncodeTicket(env *envelope.Envelope, level1, level2 Signer) ([]byte, *envelope.Envelope, error) {
	if env == nil {
		return nil, nil, errors.New("envelope is required")
	}
	if level1 == nil {
		return nil, nil, errors.New("level 1 signer is required")
	}

	signed := env.Clone()
	applySigners(&signed.Level2SignedData.Level1Data, level1, level2)
	signed.Level2SignedData.Level1Signature = nil
	signed.Level2Signature = nil

	if err := SignLevel1(signed, level1); err != nil {
		return nil, nil, err
	}
	if level2 != nil {
		if err := SignLevel2(signed, level2); err != nil {
			return nil, nil, err
		}
	}

	b, err := envelope.Encode(signed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b, signed, nil
}
