package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"strings"
)

// GenerateCode returns an upper-case hex code built from byteLen random bytes,
// so the result is 2*byteLen characters long.
func GenerateCode(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", errors.New("crypto: code length must be positive")
	}
	buffer := make([]byte, byteLen)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buffer)), nil
}

// Fingerprint is an io.Writer that hashes and counts everything written through it.
type Fingerprint struct {
	digest hash.Hash
	size   int64
}

// NewFingerprint returns an empty SHA-256 fingerprint.
func NewFingerprint() *Fingerprint {
	return &Fingerprint{digest: sha256.New()}
}

func (f *Fingerprint) Write(p []byte) (int, error) {
	n, err := f.digest.Write(p)
	f.size += int64(n)
	return n, err
}

// Size returns the number of bytes hashed so far.
func (f *Fingerprint) Size() int64 {
	return f.size
}

// Sum returns the lower-case hex digest of the bytes written so far.
func (f *Fingerprint) Sum() string {
	return hex.EncodeToString(f.digest.Sum(nil))
}

// SHA256Hex hashes the full reader and returns the hex digest with the byte count.
func SHA256Hex(r io.Reader) (string, int64, error) {
	fp := NewFingerprint()
	if _, err := io.Copy(fp, r); err != nil {
		return "", 0, err
	}
	return fp.Sum(), fp.Size(), nil
}
