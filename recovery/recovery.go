// Package recovery recovers an issuer's Level 1 public key from signed barcodes.
//
// One ECDSA signature admits two candidate public keys. Signatures made with the
// same key narrow the candidates down by intersection:
//
//	inputs := make([]recovery.Input, 0, len(barcodes))
//	for _, b := range barcodes {
//		in, err := recovery.InputFromBarcode(b)
//		if err != nil {
//			log.Fatal(err)
//		}
//		inputs = append(inputs, *in)
//	}
//	result, err := recovery.Recover(inputs)
package recovery

import (
	"bytes"
	stdcrypto "crypto"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/anchorageoss/railsig/crypto"
	"github.com/anchorageoss/railsig/envelope"
	"github.com/anchorageoss/railsig/keys"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoCommonKey is returned when no public key verifies every input
var ErrNoCommonKey = errors.New("no common key")

// Input is one message signed by the unknown key
type Input struct {
	Message []byte
	// Signature is DER encoded
	Signature []byte
	Curve     *crypto.Curve
	Hash      stdcrypto.Hash
	Provider  keys.ProviderRef
	KeyID     *uint32
}

// InputFromBarcode takes the Level 1 data and signature of a barcode. The Level 1
// signing algorithm must be ECDSA.
func InputFromBarcode(b []byte) (*Input, error) {
	regions, err := envelope.Extract(b)
	if err != nil {
		return nil, fmt.Errorf("failed to extract signed regions: %w", err)
	}
	md := regions.Metadata

	if md.Level1SigningAlg == nil {
		return nil, fmt.Errorf("%w: barcode has no level 1 signing algorithm", crypto.ErrUnsupportedAlgorithm)
	}
	if md.Level1Signature == nil {
		return nil, errors.New("barcode has no level 1 signature")
	}

	var keyOID string
	if md.Level1KeyAlg != nil {
		keyOID = *md.Level1KeyAlg
	}
	alg, curve, err := crypto.ResolveECDSA(*md.Level1SigningAlg, keyOID)
	if err != nil {
		return nil, err
	}

	provider := keys.ProviderRef{Num: md.SecurityProviderNum}
	if md.SecurityProviderIA5 != nil {
		provider.Code = *md.SecurityProviderIA5
	}

	return &Input{
		Message:   regions.Level1Data.Bytes,
		Signature: md.Level1Signature,
		Curve:     curve,
		Hash:      alg.Hash,
		Provider:  provider,
		KeyID:     md.KeyID,
	}, nil
}

// InputResult holds the candidates recovered from one input
type InputResult struct {
	Candidates []crypto.Candidate
}

// Result is the outcome of Recover
type Result struct {
	Inputs []InputResult
	// Keys are the uncompressed points that verify every input
	Keys [][]byte
	// Warnings report inputs that do not look like they share a signer
	Warnings []string
}

// Ambiguous reports whether more signatures are needed to single out the key
func (r *Result) Ambiguous() bool {
	return len(r.Keys) > 1
}

// Recoverer recovers keys and logs through Logger when set
type Recoverer struct {
	Logger logrus.FieldLogger
}

// Recover recovers with a Recoverer that does not log
func Recover(inputs []Input) (*Result, error) {
	return (&Recoverer{}).Recover(inputs)
}

// Recover recovers each input's candidates, intersects them by point and keeps the
// keys that verify every input. An empty intersection returns the partial result
// with ErrNoCommonKey.
func (r *Recoverer) Recover(inputs []Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, errors.New("at least one signature is required")
	}

	result := &Result{
		Inputs:   make([]InputResult, len(inputs)),
		Warnings: consistencyWarnings(inputs),
	}
	for _, w := range result.Warnings {
		r.logger().Warn(w)
	}

	raws := make([][]byte, len(inputs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range inputs {
		i := i
		g.Go(func() error {
			in := &inputs[i]
			if in.Curve == nil {
				return fmt.Errorf("input %d: %w: no curve", i, crypto.ErrUnsupportedAlgorithm)
			}
			raw, err := crypto.DERToRaw(in.Signature, in.Curve.ComponentLength)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			candidates, err := crypto.RecoverCandidates(in.Curve, in.Hash, in.Message, raw)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			raws[i] = raw
			result.Inputs[i] = InputResult{Candidates: candidates}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, in := range result.Inputs {
		r.logger().WithFields(logrus.Fields{
			"input":      i,
			"candidates": len(in.Candidates),
		}).Debug("recovered candidates")
	}

	for _, point := range intersect(result.Inputs) {
		if verifiesAll(point, inputs, raws) {
			result.Keys = append(result.Keys, point)
		}
	}

	if len(result.Keys) == 0 {
		return result, fmt.Errorf("%w across %d signatures", ErrNoCommonKey, len(inputs))
	}
	return result, nil
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (r *Recoverer) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return discardLogger
	}
	return r.Logger
}

// consistencyWarnings compares every input's provider, key id and curve with the
// first input's
func consistencyWarnings(inputs []Input) []string {
	var warnings []string
	first := inputs[0]
	for i := 1; i < len(inputs); i++ {
		in := inputs[i]
		if in.Provider.String() != first.Provider.String() {
			warnings = append(warnings, fmt.Sprintf("input %d: provider %s differs from %s", i, in.Provider, first.Provider))
		}
		if !sameKeyID(in.KeyID, first.KeyID) {
			warnings = append(warnings, fmt.Sprintf("input %d: key id %s differs from %s", i, keyIDString(in.KeyID), keyIDString(first.KeyID)))
		}
		if curveName(in.Curve) != curveName(first.Curve) {
			warnings = append(warnings, fmt.Sprintf("input %d: curve %s differs from %s", i, curveName(in.Curve), curveName(first.Curve)))
		}
	}
	return warnings
}

func sameKeyID(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func keyIDString(id *uint32) string {
	if id == nil {
		return "<none>"
	}
	return fmt.Sprint(*id)
}

func curveName(c *crypto.Curve) string {
	if c == nil {
		return "<none>"
	}
	return c.Name
}

// intersect returns the points of the first candidate set present in every other set
func intersect(sets []InputResult) [][]byte {
	var out [][]byte
	for _, c := range sets[0].Candidates {
		inAll := true
		for _, other := range sets[1:] {
			if !containsPoint(other.Candidates, c.Point) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, c.Point)
		}
	}
	return out
}

func containsPoint(candidates []crypto.Candidate, point []byte) bool {
	for _, c := range candidates {
		if bytes.Equal(c.Point, point) {
			return true
		}
	}
	return false
}

func verifiesAll(point []byte, inputs []Input, raws [][]byte) bool {
	for i, in := range inputs {
		pub, err := crypto.UnmarshalPoint(in.Curve, point)
		if err != nil {
			return false
		}
		if !crypto.VerifyECDSASignature(pub, in.Hash, in.Message, raws[i]) {
			return false
		}
	}
	return true
}
