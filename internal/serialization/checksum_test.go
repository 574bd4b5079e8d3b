package serialization

import (
	"errors"
	"testing"
)

// TestComputeChecksum verifies SHA-256 checksum computation.
func TestComputeChecksum(t *testing.T) {
	data := []byte("test data")
	if ComputeChecksum(data) != ComputeChecksum(data) {
		t.Error("Checksums should match for identical data")
	}
	if ComputeChecksum(data) == ComputeChecksum([]byte("different data")) {
		t.Error("Checksums should differ for different data")
	}
}

// TestChecksumHexRoundTrip verifies the metadata encoding of checksums.
func TestChecksumHexRoundTrip(t *testing.T) {
	sum := ComputeChecksum([]byte("volume"))
	encoded := FormatChecksum(sum)
	if len(encoded) != 64 {
		t.Fatalf("Expected 64 hex characters, got %d", len(encoded))
	}

	decoded, err := ParseChecksum(encoded)
	if err != nil {
		t.Fatalf("ParseChecksum failed: %v", err)
	}
	if decoded != sum {
		t.Error("Decoded checksum differs from original")
	}

	for _, bad := range []string{"", "zz", encoded[:62]} {
		if _, err := ParseChecksum(bad); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("ParseChecksum(%q): expected ErrInvalidHeader, got %v", bad, err)
		}
	}
}

// TestValidateChecksum verifies checksum validation.
func TestValidateChecksum(t *testing.T) {
	checksum := ComputeChecksum([]byte("test data"))
	if err := ValidateChecksum(checksum, checksum); err != nil {
		t.Errorf("Expected no error for matching checksums, got: %v", err)
	}

	other := ComputeChecksum([]byte("other data"))
	if err := ValidateChecksum(checksum, other); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got: %v", err)
	}
}
