package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/idcnn/internal/tensor"
)

// NamedTensor is one entry of a state dictionary. Order is preserved in
// the file.
type NamedTensor struct {
	Name   string
	Tensor *tensor.Tensor
}

// Write encodes header and tensors in .idcn format.
//
// Tensor metadata in header is replaced. An empty RunID gets a fresh UUID
// and a zero CreatedAt the current time.
func Write(w io.Writer, header Header, tensors []NamedTensor) error {
	header.FormatVersion = FormatVersion
	if header.RunID == "" {
		header.RunID = uuid.NewString()
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	// Calculate tensor offsets and collect tensor data
	var data []byte
	header.Tensors = make([]TensorMeta, 0, len(tensors))
	for _, nt := range tensors {
		if err := ValidateTensorName(nt.Name); err != nil {
			return err
		}
		values := nt.Tensor.Data()
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   nt.Name,
			DType:  DTypeFloat64,
			Shape:  []int(nt.Tensor.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   int64(len(values) * float64Size),
		})
		data = appendFloat64s(data, values)
	}
	if err := ValidateHeader(&header, int64(len(data))); err != nil {
		return err
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	flags := uint32(0)
	if header.Checkpoint != nil {
		flags |= FlagHasCheckpoint
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F reserved
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := ComputeChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := bw.Write(make([]byte, alignment(int64(len(headerJSON))))); err != nil {
		return fmt.Errorf("failed to write padding: %w", err)
	}
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return bw.Flush()
}

// WriteFile writes a checkpoint to path. The file is written next to its
// destination and renamed into place, so readers never observe a partial
// checkpoint.
func WriteFile(path string, header Header, tensors []NamedTensor) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := Write(tmp, header, tensors); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

func appendFloat64s(dst []byte, values []float64) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}
