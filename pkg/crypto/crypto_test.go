package crypto

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"testing"
)

var upperHex8 = regexp.MustCompile(`^[0-9A-F]{8}$`)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(4)
		if err != nil {
			t.Fatalf("code error: %v", err)
		}
		if !upperHex8.MatchString(code) {
			t.Fatalf("unexpected code format: %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected generated codes to be mostly unique, got %d distinct", len(seen))
	}
}

func TestGenerateCodeRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestSHA256HexKnownVector(t *testing.T) {
	sum, size, err := SHA256Hex(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %s", sum)
	}
	if size != 3 {
		t.Fatalf("expected size 3, got %d", size)
	}
}

func TestFingerprintMatchesTeedBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("submission"), 1000)
	fp := NewFingerprint()
	var sink bytes.Buffer

	if _, err := io.Copy(io.MultiWriter(&sink, fp), bytes.NewReader(payload)); err != nil {
		t.Fatalf("copy error: %v", err)
	}

	want, _, err := SHA256Hex(bytes.NewReader(sink.Bytes()))
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if fp.Sum() != want {
		t.Fatalf("fingerprint %s does not match stored bytes %s", fp.Sum(), want)
	}
	if fp.Size() != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), fp.Size())
	}
	if len(fp.Sum()) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp.Sum()))
	}
}
