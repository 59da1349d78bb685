package serialization

import (
	"crypto/sha256"
	"hash"
	"io"
)

// ComputeChecksum returns the SHA-256 of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader hashes everything r yields.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum returns ErrChecksumMismatch unless the sums are equal.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

// dataHash accumulates the checksum of the tensor data section.
type dataHash struct{ h hash.Hash }

func newDataHash() *dataHash { return &dataHash{h: sha256.New()} }

func (d *dataHash) Write(p []byte) { d.h.Write(p) }

func (d *dataHash) Sum() [32]byte {
	var sum [32]byte
	copy(sum[:], d.h.Sum(nil))
	return sum
}
