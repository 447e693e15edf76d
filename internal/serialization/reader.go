package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/idcnn/internal/tensor"
)

// Checkpoint is a decoded .idcn file.
type Checkpoint struct {
	Header  Header
	Tensors map[string]*tensor.Tensor
}

// TensorNames returns the tensor names in file order.
func (c *Checkpoint) TensorNames() []string {
	names := make([]string, len(c.Header.Tensors))
	for i, meta := range c.Header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// NumElements returns the total number of stored values.
func (c *Checkpoint) NumElements() int {
	n := 0
	for _, t := range c.Tensors {
		n += t.NumElements()
	}
	return n
}

// ReadFile reads and verifies the checkpoint at path.
func ReadFile(path string) (*Checkpoint, error) {
	//nolint:gosec // G304: checkpoint path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	ckpt, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ckpt, nil
}

// Read decodes a checkpoint from r, validating the header and the data
// checksum.
func Read(r io.Reader) (*Checkpoint, error) {
	br := bufio.NewReader(r)

	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, truncated("fixed header", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, fixed[0:4], MagicBytes)
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(br, headerBytes); err != nil {
		return nil, truncated("header", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	//nolint:gosec // G115: bounded by MaxHeaderSize
	if _, err := io.CopyN(io.Discard, br, alignment(int64(headerSize))); err != nil {
		return nil, truncated("padding", err)
	}

	if dataSize%float64Size != 0 || dataSize > math.MaxInt32*float64Size {
		return nil, fmt.Errorf("%w: data size %d", ErrOutOfBounds, dataSize)
	}
	//nolint:gosec // G115: bounded above
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, truncated("tensor data", err)
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, err
	}

	ckpt := &Checkpoint{Header: header, Tensors: make(map[string]*tensor.Tensor, len(header.Tensors))}
	for _, meta := range header.Tensors {
		t := tensor.New(tensor.Shape(meta.Shape))
		chunk := data[meta.Offset : meta.Offset+meta.Size]
		for i := range t.Data() {
			t.Data()[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk[i*float64Size:]))
		}
		ckpt.Tensors[meta.Name] = t
	}
	return ckpt, nil
}

func truncated(section string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, section)
	}
	return fmt.Errorf("failed to read %s: %w", section, err)
}
