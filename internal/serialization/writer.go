package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/x448/float16"

	"github.com/vq-sce/vqsce/internal/tensor"
)

// WriterOptions configures Write.
type WriterOptions struct {
	// Float16 stores float32 tensors as F16.
	Float16 bool
}

// WriteFile writes tensors to a SafeTensors file at path.
func WriteFile(path string, tensors *orderedmap.OrderedMap[string, *tensor.RawTensor], metadata map[string]string, opts WriterOptions) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, tensors, metadata, opts); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// Write encodes tensors in SafeTensors format, in map order.
//
// metadata is stored under "__metadata__" together with the checksum of
// the data section.
func Write(w io.Writer, tensors *orderedmap.OrderedMap[string, *tensor.RawTensor], metadata map[string]string, opts WriterOptions) error {
	var data bytes.Buffer
	infos := orderedmap.New[string, TensorInfo]()

	for pair := tensors.Oldest(); pair != nil; pair = pair.Next() {
		if err := ValidateTensorName(pair.Key); err != nil {
			return err
		}
		dtype, payload, err := encodeTensor(pair.Value, opts)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", pair.Key, err)
		}

		shape := pair.Value.Shape()
		dims := make([]int64, len(shape))
		for i, d := range shape {
			dims[i] = int64(d)
		}
		begin := int64(data.Len())
		data.Write(payload)
		infos.Set(pair.Key, TensorInfo{
			DType:       dtype,
			Shape:       dims,
			DataOffsets: [2]int64{begin, int64(data.Len())},
		})
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetadataChecksum] = FormatChecksum(ComputeChecksum(data.Bytes()))

	header := orderedmap.New[string, any]()
	header.Set(MetadataKey, meta)
	for pair := infos.Oldest(); pair != nil; pair = pair.Next() {
		header.Set(pair.Key, pair.Value)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if pad := len(headerJSON) % headerAlignment; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, headerAlignment-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// encodeTensor returns the dtype code and little-endian bytes of raw.
func encodeTensor(raw *tensor.RawTensor, opts WriterOptions) (string, []byte, error) {
	switch raw.DType() {
	case tensor.Float32:
		if !opts.Float16 {
			return DTypeF32, raw.Data(), nil
		}
		values := raw.AsFloat32()
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return DTypeF16, out, nil
	case tensor.Float64:
		return DTypeF64, raw.Data(), nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, raw.DType())
	}
}
