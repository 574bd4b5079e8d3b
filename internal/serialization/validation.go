package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// tensorSpan is the byte range of one tensor in the data section.
type tensorSpan struct {
	name       string
	begin, end int64
	wantBytes  int64
}

// ValidateTensorName rejects names that are empty, overlong, or could be
// confused with file paths. Names are '/'-separated paths of non-empty
// segments, e.g. "down_0/conv1/kernel".
func ValidateTensorName(name string) error {
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Kind:    ErrTensorNameTooLong,
			Tensor:  name[:64],
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if name == "" {
		return &ValidationError{Kind: ErrInvalidTensorName, Details: "empty name"}
	}
	if strings.ContainsAny(name, "\\\x00") {
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains backslash or null byte"}
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: fmt.Sprintf("bad path segment %q", segment)}
		}
	}
	return nil
}

// validateSpans checks that every tensor lies inside the data section, has
// the size its dtype and shape imply, and does not overlap another tensor.
func validateSpans(spans []tensorSpan, dataSize int64) error {
	if len(spans) > MaxTensorCount {
		return &ValidationError{
			Kind:    ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(spans), MaxTensorCount),
		}
	}

	sorted := make([]tensorSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].begin < sorted[j].begin
	})

	for i, s := range sorted {
		if s.begin < 0 || s.end < s.begin {
			return &ValidationError{
				Kind:    ErrNegativeOffset,
				Tensor:  s.name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", s.begin, s.end),
			}
		}
		if s.end > dataSize {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("end %d > data_size %d", s.end, dataSize),
			}
		}
		if s.end-s.begin != s.wantBytes {
			return &ValidationError{
				Kind:    ErrInvalidHeader,
				Tensor:  s.name,
				Details: fmt.Sprintf("holds %d bytes, dtype and shape need %d", s.end-s.begin, s.wantBytes),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if s.end > next.begin {
				return &ValidationError{
					Kind:    ErrOffsetOverlap,
					Tensor:  s.name,
					Tensor2: next.name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.begin, s.end, next.begin, next.end),
				}
			}
		}
	}
	return nil
}
