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

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool // Skip checksum validation (faster but less safe)
}

// File is a decoded SafeTensors file.
type File struct {
	Metadata map[string]string
	// Tensors holds every tensor in header order. F16 tensors are widened
	// to float32.
	Tensors *orderedmap.OrderedMap[string, *tensor.RawTensor]
	// DTypes records the stored dtype code of every tensor.
	DTypes map[string]string
}

// Tensor returns the named tensor or ErrTensorNotFound.
func (f *File) Tensor(name string) (*tensor.RawTensor, error) {
	raw, ok := f.Tensors.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return raw, nil
}

// ReadFile reads a SafeTensors file from path.
func ReadFile(path string, opts ReaderOptions) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // Best effort close
	}()
	return Read(file, opts)
}

// Read decodes a SafeTensors stream, validating names, offsets and, unless
// disabled, the data checksum.
func Read(r io.Reader, opts ReaderOptions) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	entries := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(bytes.TrimRight(headerJSON, " "), entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	f := &File{
		Metadata: map[string]string{},
		Tensors:  orderedmap.New[string, *tensor.RawTensor](),
		DTypes:   map[string]string{},
	}
	type entry struct {
		name  string
		info  TensorInfo
		shape tensor.Shape
	}
	var tensors []entry
	var spans []tensorSpan

	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == MetadataKey {
			if err := json.Unmarshal(pair.Value, &f.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
			}
			continue
		}
		if err := ValidateTensorName(pair.Key); err != nil {
			return nil, err
		}

		var info TensorInfo
		if err := json.Unmarshal(pair.Value, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, pair.Key, err)
		}
		size, err := elementSize(info.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", pair.Key, err)
		}
		shape, n, err := shapeOf(info.Shape, int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", pair.Key, err)
		}

		tensors = append(tensors, entry{name: pair.Key, info: info, shape: shape})
		spans = append(spans, tensorSpan{
			name:      pair.Key,
			begin:     info.DataOffsets[0],
			end:       info.DataOffsets[1],
			wantBytes: n * int64(size),
		})
	}

	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, err
	}

	if stored, ok := f.Metadata[MetadataChecksum]; ok && !opts.SkipChecksumValidation {
		sum, err := ParseChecksum(stored)
		if err != nil {
			return nil, err
		}
		if err := ValidateChecksum(ComputeChecksum(data), sum); err != nil {
			return nil, err
		}
	}

	for _, e := range tensors {
		raw := decodeTensor(e.info.DType, e.shape, data[e.info.DataOffsets[0]:e.info.DataOffsets[1]])
		f.Tensors.Set(e.name, raw)
		f.DTypes[e.name] = e.info.DType
	}
	return f, nil
}

// decodeTensor copies payload into a new tensor. The dtype and payload size
// have already been validated.
func decodeTensor(dtype string, shape tensor.Shape, payload []byte) *tensor.RawTensor {
	switch dtype {
	case DTypeF64:
		raw := tensor.MustNewRaw(shape, tensor.Float64, tensor.CPU)
		copy(raw.Data(), payload)
		return raw
	case DTypeF16:
		raw := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
		values := raw.AsFloat32()
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(payload[2*i:])).Float32()
		}
		return raw
	default:
		raw := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
		copy(raw.Data(), payload)
		return raw
	}
}
