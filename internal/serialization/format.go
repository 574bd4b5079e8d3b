package serialization

import (
	"fmt"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// SafeTensors dtype codes.
const (
	DTypeF16 = "F16"
	DTypeF32 = "F32"
	DTypeF64 = "F64"
)

// Reserved header keys.
const (
	MetadataKey      = "__metadata__"
	MetadataChecksum = "checksum_sha256" // hex SHA-256 of the data section
)

// headerAlignment pads the JSON header so tensor data starts 8-byte aligned.
const headerAlignment = 8

// TensorInfo is the header entry of one tensor.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// elementSize returns the stored byte width of a dtype code.
func elementSize(dtype string) (int, error) {
	switch dtype {
	case DTypeF16:
		return 2, nil
	case DTypeF32:
		return 4, nil
	case DTypeF64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, dtype)
	}
}

// shapeOf converts a header shape, rejecting non-positive dims and element
// counts larger than limit.
func shapeOf(dims []int64, limit int64) (tensor.Shape, int64, error) {
	shape := make(tensor.Shape, len(dims))
	n := int64(1)
	for i, d := range dims {
		if d <= 0 || n > limit/d {
			return nil, 0, fmt.Errorf("%w: shape %v", ErrInvalidHeader, dims)
		}
		n *= d
		shape[i] = int(d)
	}
	return shape, n, nil
}
