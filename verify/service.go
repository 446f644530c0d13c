package verify

import (
	"context"
	"crypto/dsa" //nolint:staticcheck // Level 1 keys of older issuers are DSA
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/keys"
	"github.com/anchorageoss/railsig/ticket"
)

// Service handles verification logic
type Service struct {
	directory keys.Directory
}

// NewService creates a new verification service. directory may be nil when every
// request carries its Level 1 key.
func NewService(directory keys.Directory) *Service {
	return &Service{
		directory: directory,
	}
}

// Verify verifies both signature levels of a barcode. Structural problems and
// unsupported algorithms are returned as errors; a signature that does not verify
// is reported in the result.
func (s *Service) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	// Step 1: Locate the signed regions
	regions, err := envelope.Extract(req.Barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to extract signed regions: %w", err)
	}
	md := regions.Metadata

	result := &VerifyResult{
		Version:  md.Version,
		Metadata: md,
		KeyID:    md.KeyID,
		Regions: []RegionInfo{
			regionInfo(envelope.FieldLevel1Data, regions.Level1Data),
			regionInfo(envelope.FieldLevel2SignedData, regions.Level2SignedData),
		},
	}
	provider := providerRef(md)
	result.Provider = provider.String()

	// Step 2: Resolve the Level 1 key
	level1Key := req.Level1PublicKey
	if level1Key == nil {
		level1Key, err = s.lookupLevel1Key(ctx, provider, md.KeyID)
		if err != nil {
			return nil, err
		}
	}

	// Step 3: Verify Level 1
	if md.Level1Signature == nil {
		return nil, errors.New("barcode has no level 1 signature")
	}
	result.Level1, err = verifyLevel(md.Level1SigningAlg, md.Level1KeyAlg, level1Key, regions.Level1Data.Bytes, md.Level1Signature)
	if err != nil {
		return nil, fmt.Errorf("level 1: %w", err)
	}

	// Step 4: Verify Level 2 with the key embedded in Level 1 data
	if md.Level2Signature != nil {
		if md.Level2PublicKey == nil {
			return nil, errors.New("level 2: barcode has a signature but no level 2 public key")
		}
		result.Level2, err = verifyLevel(md.Level2SigningAlg, md.Level2KeyAlg, md.Level2PublicKey, regions.Level2SignedData.Bytes, md.Level2Signature)
		if err != nil {
			return nil, fmt.Errorf("level 2: %w", err)
		}
	}

	result.Valid = result.Level1.Valid && (!result.Level2.Present || result.Level2.Valid)

	// Step 5: Decode the payload blocks
	if env, err := envelope.Decode(req.Barcode); err == nil {
		result.Blocks = ticket.DecodeBlocks(env.Level2SignedData.Level1Data.DataSequence)
		if d := env.Level2SignedData.Level2Data; d != nil {
			result.Blocks = append(result.Blocks, ticket.DecodeBlock(*d))
		}
	}

	return result, nil
}

// lookupLevel1Key resolves the Level 1 key from the directory
func (s *Service) lookupLevel1Key(ctx context.Context, provider keys.ProviderRef, keyID *uint32) ([]byte, error) {
	if s.directory == nil {
		return nil, errors.New("no level 1 public key given and no key directory configured")
	}
	if keyID == nil {
		return nil, errors.New("barcode has no key id to look up")
	}
	key, err := s.directory.Lookup(ctx, provider, *keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up level 1 key: %w", err)
	}
	return key, nil
}

func providerRef(md envelope.SecurityMetadata) keys.ProviderRef {
	ref := keys.ProviderRef{Num: md.SecurityProviderNum}
	if md.SecurityProviderIA5 != nil {
		ref.Code = *md.SecurityProviderIA5
	}
	return ref
}

func regionInfo(name string, r envelope.Region) RegionInfo {
	return RegionInfo{Name: name, Start: r.Start, End: r.End, SHA256: envelope.ComputeHash(r.Bytes)}
}

// verifyLevel verifies one signature level by its algorithm kind
func verifyLevel(signingOID, keyOID *string, key, message, signature []byte) (LevelResult, error) {
	res := LevelResult{
		Present:      true,
		SignatureHex: hex.EncodeToString(signature),
	}
	if signingOID == nil {
		return res, fmt.Errorf("%w: no signing algorithm", crypto.ErrUnsupportedAlgorithm)
	}
	alg, ok := crypto.LookupSigningAlgorithm(*signingOID)
	if !ok {
		return res, fmt.Errorf("%w: signing algorithm %q", crypto.ErrUnsupportedAlgorithm, *signingOID)
	}
	res.Algorithm = alg.Name

	switch alg.Kind {
	case crypto.KindECDSA:
		var keyAlg string
		if keyOID != nil {
			keyAlg = *keyOID
		}
		_, curve, err := crypto.ResolveECDSA(alg.OID, keyAlg)
		if err != nil {
			return res, err
		}
		res.Curve = curve.Name

		point, err := keys.ExtractECPublicKeyPoint(key)
		if err != nil {
			return res, err
		}
		res.PublicKeyHex = hex.EncodeToString(point)

		pub, err := crypto.UnmarshalPoint(curve, point)
		if err != nil {
			return res, fmt.Errorf("invalid public key: %w", err)
		}
		raw, err := crypto.DERToRaw(signature, curve.ComponentLength)
		if err != nil {
			return res, err
		}

		res.Valid = crypto.VerifyECDSASignature(pub, alg.Hash, message, raw)

	case crypto.KindDSA:
		parsed, err := x509.ParsePKIXPublicKey(key)
		if err != nil {
			return res, fmt.Errorf("%w: %v", keys.ErrUnrecognizedKeyFormat, err)
		}
		pub, ok := parsed.(*dsa.PublicKey)
		if !ok {
			return res, fmt.Errorf("%w: expected a DSA key, got %T", keys.ErrUnrecognizedKeyFormat, parsed)
		}
		res.PublicKeyHex = hex.EncodeToString(key)
		res.Valid = crypto.VerifyDSASignature(pub, alg.Hash, message, signature)

	default:
		return res, fmt.Errorf("%w: %s signatures are identified but not verified", crypto.ErrUnsupportedAlgorithm, alg.Name)
	}

	if !res.Valid {
		res.Error = "signature verification failed"
	}
	return res, nil
}
