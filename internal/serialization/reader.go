package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/vit/internal/tensor"
)

// ReaderOptions configures decoding.
type ReaderOptions struct {
	SkipChecksumValidation bool
	ValidationLevel        ValidationLevel
}

// File is a decoded .born file.
type File struct {
	Header   Header
	Flags    uint32
	Checksum [32]byte
	Tensors  map[string]*tensor.RawTensor
}

// HasOptimizer reports whether optimizer state was stored.
func (f *File) HasOptimizer() bool { return f.Flags&FlagHasOptimizer != 0 }

type fixedHeader struct {
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [32]byte
}

func readFixedHeader(r io.Reader) (fixedHeader, error) {
	var fh fixedHeader
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fh, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(buf[0:4]) != MagicBytes {
		return fh, fmt.Errorf("%w: got %q", ErrInvalidMagic, buf[0:4])
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != FormatVersion {
		return fh, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	fh.flags = binary.LittleEndian.Uint32(buf[8:12])
	fh.headerSize = binary.LittleEndian.Uint64(buf[16:24])
	fh.dataSize = binary.LittleEndian.Uint64(buf[24:32])
	copy(fh.checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if fh.headerSize > MaxHeaderSize {
		return fh, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, fh.headerSize)
	}
	if fh.dataSize > math.MaxInt64 {
		return fh, &ValidationError{Type: "out_of_bounds", Details: fmt.Sprintf("data size %d", fh.dataSize)}
	}
	return fh, nil
}

func readJSONHeader(r io.Reader, size uint64) (Header, error) {
	var h Header
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(buf, &h); err != nil {
		return h, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	return h, nil
}

// Decode reads a complete .born stream.
func Decode(r io.Reader, opts ReaderOptions) (*File, error) {
	fh, err := readFixedHeader(r)
	if err != nil {
		return nil, err
	}
	header, err := readJSONHeader(r, fh.headerSize)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // bounded by MaxHeaderSize
	hs := int64(fh.headerSize)
	padding := dataOffset(hs) - FixedHeaderSize - hs
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return nil, fmt.Errorf("failed to read padding: %w", err)
	}

	dataSize := int64(fh.dataSize) //nolint:gosec // checked against MaxInt64
	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, dataSize); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data.Bytes()), fh.checksum); err != nil {
			return nil, err
		}
	}
	if err := ValidateHeader(&header, dataSize, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	tensors, err := buildTensors(header.Tensors, data.Bytes())
	if err != nil {
		return nil, err
	}
	return &File{Header: header, Flags: fh.flags, Checksum: fh.checksum, Tensors: tensors}, nil
}

func buildTensors(metas []TensorMeta, data []byte) (map[string]*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(metas))
	for _, meta := range metas {
		dtype, ok := tensor.ParseDataType(meta.DType)
		if !ok {
			return nil, fmt.Errorf("%w: %q for tensor %s", ErrUnsupportedDType, meta.DType, meta.Name)
		}
		shape := tensor.Shape(meta.Shape)
		if err := shape.Validate(); err != nil {
			return nil, fmt.Errorf("invalid shape for tensor %s: %w", meta.Name, err)
		}
		if want := int64(shape.NumElements() * dtype.Size()); want != meta.Size {
			return nil, &ValidationError{
				Type:    "size_mismatch",
				Tensor:  meta.Name,
				Details: fmt.Sprintf("shape %v of %s needs %d bytes, header says %d", shape, dtype, want, meta.Size),
			}
		}
		if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return nil, &ValidationError{Type: "out_of_bounds", Tensor: meta.Name, Details: "tensor outside data section"}
		}
		buf := make([]byte, meta.Size)
		copy(buf, data[meta.Offset:meta.Offset+meta.Size])
		raw, err := tensor.RawFromBytes(buf, shape, dtype, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", meta.Name, err)
		}
		out[meta.Name] = raw
	}
	return out, nil
}

// ReadFile decodes the file at path.
func ReadFile(path string, opts ReaderOptions) (*File, error) {
	//nolint:gosec // G304: path is supplied by the user on purpose
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	file, err := Decode(bufio.NewReader(f), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// ReadHeader reads only the fixed and JSON headers of path. The data
// section is neither read nor verified.
func ReadHeader(path string) (Header, error) {
	//nolint:gosec // G304: path is supplied by the user on purpose
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	fh, err := readFixedHeader(r)
	if err != nil {
		return Header{}, err
	}
	return readJSONHeader(r, fh.headerSize)
}
