// Package integrity computes and checks per-chunk digests.
package integrity

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// DefaultAlgorithm is used when a manifest does not name one.
const DefaultAlgorithm = "sha1"

var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil) // only errors on an oversized key
		return h
	},
}

// Algorithms lists the supported digest names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verifier hashes chunks with one algorithm. The zero value uses DefaultAlgorithm.
type Verifier struct {
	algorithm string
	newHash   func() hash.Hash
}

// New returns a Verifier for algorithm; "" selects DefaultAlgorithm.
func New(algorithm string) (Verifier, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	algorithm = strings.ToLower(algorithm)
	fn, ok := algorithms[algorithm]
	if !ok {
		return Verifier{}, fmt.Errorf("unsupported digest algorithm %q (have %s)", algorithm, strings.Join(Algorithms(), ", "))
	}
	return Verifier{algorithm: algorithm, newHash: fn}, nil
}

func (v Verifier) Algorithm() string {
	if v.algorithm == "" {
		return DefaultAlgorithm
	}
	return v.algorithm
}

// Hash returns a fresh hash.Hash for streaming use.
func (v Verifier) Hash() hash.Hash {
	if v.newHash == nil {
		return algorithms[DefaultAlgorithm]()
	}
	return v.newHash()
}

// Digest returns the lowercase hex digest of data.
func (v Verifier) Digest(data []byte) string {
	h := v.Hash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether data hashes to expected. Expected is compared
// case-insensitively as hex; a mismatch wraps protocol.ErrIntegrityMismatch.
func (v Verifier) Verify(data []byte, expected string) error {
	want, err := hex.DecodeString(strings.TrimSpace(expected))
	if err != nil {
		return fmt.Errorf("%w: expected digest %q is not hex", protocol.ErrIntegrityMismatch, expected)
	}
	h := v.Hash()
	h.Write(data)
	got := h.Sum(nil)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return fmt.Errorf("%w: %s %s, want %s", protocol.ErrIntegrityMismatch, v.Algorithm(), hex.EncodeToString(got), strings.ToLower(expected))
	}
	return nil
}
