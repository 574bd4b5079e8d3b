package serialization

import (
	"errors"
	"strings"
	"testing"
)

// TestValidateSpans covers bounds, size and overlap checks.
func TestValidateSpans(t *testing.T) {
	tests := []struct {
		name     string
		spans    []tensorSpan
		dataSize int64
		wantErr  error
	}{
		{
			name: "adjacent tensors",
			spans: []tensorSpan{
				{name: "a", begin: 0, end: 100, wantBytes: 100},
				{name: "b", begin: 100, end: 300, wantBytes: 200},
			},
			dataSize: 300,
		},
		{
			name: "unordered but disjoint",
			spans: []tensorSpan{
				{name: "b", begin: 100, end: 300, wantBytes: 200},
				{name: "a", begin: 0, end: 100, wantBytes: 100},
			},
			dataSize: 300,
		},
		{
			name: "overlap by one byte",
			spans: []tensorSpan{
				{name: "a", begin: 0, end: 100, wantBytes: 100},
				{name: "b", begin: 99, end: 199, wantBytes: 100},
			},
			dataSize: 200,
			wantErr:  ErrOffsetOverlap,
		},
		{
			name: "past the data section",
			spans: []tensorSpan{
				{name: "a", begin: 100, end: 300, wantBytes: 200},
			},
			dataSize: 250,
			wantErr:  ErrOutOfBounds,
		},
		{
			name: "negative offset",
			spans: []tensorSpan{
				{name: "a", begin: -100, end: 0, wantBytes: 100},
			},
			dataSize: 500,
			wantErr:  ErrNegativeOffset,
		},
		{
			name: "reversed offsets",
			spans: []tensorSpan{
				{name: "a", begin: 100, end: 0, wantBytes: 100},
			},
			dataSize: 500,
			wantErr:  ErrNegativeOffset,
		},
		{
			name: "size disagrees with shape",
			spans: []tensorSpan{
				{name: "a", begin: 0, end: 96, wantBytes: 100},
			},
			dataSize: 100,
			wantErr:  ErrInvalidHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSpans(tt.spans, tt.dataSize)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateSpans() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateSpans() error = %v, want %v", err, tt.wantErr)
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("Expected ValidationError, got %T", err)
			}
		})
	}
}

// TestValidateSpans_TooManyTensors prevents DoS via excessive tensor count.
func TestValidateSpans_TooManyTensors(t *testing.T) {
	spans := make([]tensorSpan, MaxTensorCount+1)
	for i := range spans {
		spans[i] = tensorSpan{name: "t", begin: int64(i), end: int64(i + 1), wantBytes: 1}
	}
	if err := validateSpans(spans, int64(len(spans))); !errors.Is(err, ErrTooManyTensors) {
		t.Errorf("Expected ErrTooManyTensors, got %v", err)
	}
}

// TestValidateTensorName checks accepted and rejected parameter names.
func TestValidateTensorName(t *testing.T) {
	valid := []string{"final/kernel", "down_0/conv1/kernel", "output_vq/codebook", "bias"}
	for _, name := range valid {
		if err := ValidateTensorName(name); err != nil {
			t.Errorf("ValidateTensorName(%q) unexpected error: %v", name, err)
		}
	}

	invalid := []string{
		"",
		"/absolute",
		"trailing/",
		"double//slash",
		"../escape",
		"a/./b",
		"windows\\path",
		"null\x00byte",
	}
	for _, name := range invalid {
		if err := ValidateTensorName(name); !errors.Is(err, ErrInvalidTensorName) {
			t.Errorf("ValidateTensorName(%q) error = %v, want ErrInvalidTensorName", name, err)
		}
	}

	long := strings.Repeat("a", MaxTensorNameLen+1)
	if err := ValidateTensorName(long); !errors.Is(err, ErrTensorNameTooLong) {
		t.Errorf("Expected ErrTensorNameTooLong, got %v", err)
	}
}
