package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainValue separates value digests from any other SHA-256 use.
// The version suffix allows a future change of canonical form.
const DomainValue = "wasmpipe/value/v1"

// Digest computes a content-addressed identity for v.
// Format: hex(SHA256(domain + 0x00 + canonical JSON)).
func Digest(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when v is known to be finite.
func MustDigest(v Value) string {
	d, err := Digest(v)
	if err != nil {
		panic(err)
	}
	return d
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
