// Package hashing provides the content-hashing algorithms used to
// compute FileMetadata.ContentHash. Per spec.md §9, the digest need not
// be cryptographically strong, but must be collision-safe for the
// change-detection workloads the engine drives; a cryptographically
// non-weak digest is used by default regardless, since the cost
// difference is negligible for typical file sizes.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/xxh3"
)

// Algorithm identifies a content-hashing algorithm.
type Algorithm uint8

const (
	// AlgorithmSHA256 is the default algorithm: a 256-bit cryptographic
	// digest from the standard library.
	AlgorithmSHA256 Algorithm = iota
	// AlgorithmXXH3 is a fast, non-cryptographic 128-bit digest, offered
	// as an opt-in for workloads (very large trees, frequent rehashing)
	// that value throughput over defense against adversarial collision
	// construction. It remains collision-safe for the accidental
	// collisions the engine needs to detect.
	AlgorithmXXH3
)

// String returns a human-readable name for the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmSHA256:
		return "sha256"
	case AlgorithmXXH3:
		return "xxh3"
	default:
		return "unknown"
	}
}

// ParseAlgorithm converts a string (as found in configuration) to an
// Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "sha256":
		return AlgorithmSHA256, nil
	case "xxh3":
		return AlgorithmXXH3, nil
	default:
		return 0, fmt.Errorf("unknown hashing algorithm: %s", name)
	}
}

// Factory returns a constructor for the algorithm's hash.Hash
// implementation.
func (a Algorithm) Factory() func() hash.Hash {
	switch a {
	case AlgorithmSHA256:
		return sha256.New
	case AlgorithmXXH3:
		return func() hash.Hash { return xxh3.New() }
	default:
		panic("unknown hashing algorithm")
	}
}

// Sum computes the hex-encoded digest of content using the algorithm.
func (a Algorithm) Sum(content []byte) string {
	h := a.Factory()()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
