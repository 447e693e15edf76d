package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "IDCN"
	FormatVersion   = 1
	HeaderAlignment = 64   // Tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	DTypeFloat64    = "float64"
	float64Size     = 8
)

// Flags for the .idcn format.
const (
	FlagHasCheckpoint uint32 = 1 << 0 // bit 0: training state included
	FlagHasMetadata   uint32 = 1 << 1 // bit 1: custom metadata included
)

// Header represents the JSON header in a .idcn file.
type Header struct {
	FormatVersion int                 `json:"format_version"`         // Version of the .idcn format
	Version       string              `json:"version"`                // Version of the program that wrote the file
	RunID         string              `json:"run_id"`                 // Identifier shared by all checkpoints of one run
	CreatedAt     time.Time           `json:"created_at"`             // When the file was created
	Network       json.RawMessage     `json:"network,omitempty"`      // Network configuration
	Tensors       []TensorMeta        `json:"tensors"`                // Tensor metadata
	Vocabularies  map[string][]string `json:"vocabularies,omitempty"` // Id-ordered strings per vocabulary
	Metadata      map[string]string   `json:"metadata,omitempty"`     // Custom metadata
	Checkpoint    *CheckpointMeta     `json:"checkpoint,omitempty"`   // Training state (optional)
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	Epoch      int     `json:"epoch"`       // Training epoch number
	GlobalStep int64   `json:"global_step"` // Optimizer steps taken
	Loss       float64 `json:"loss"`        // Loss value at checkpoint
	Optimizer  string  `json:"optimizer"`   // Optimizer name ("Adam", "SGD", ...)
	LR         float64 `json:"lr"`          // Learning rate at checkpoint
}

// TensorMeta describes a tensor in the .idcn file.
type TensorMeta struct {
	Name   string `json:"name"`   // Parameter name (e.g., "block/w_o")
	DType  string `json:"dtype"`  // Always "float64"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// alignment returns the padding after a fixed header plus a JSON header of
// the given size.
func alignment(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
