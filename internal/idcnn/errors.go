package idcnn

import "errors"

// Sentinel errors returned (wrapped) by the tagger. Test with errors.Is.
var (
	// ErrConfiguration reports an invalid NetworkConfig or LayerSpec:
	// no take layer, even width, non-positive sizes, unknown enum values,
	// duplicate parameter names, or incompatible shared block widths.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrShapeMismatch reports inputs whose shapes disagree with each other or
	// with the model: ragged batches, labels not matching token ids, ids or
	// labels outside their vocabularies, length rows not matching the batch.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidLength reports a negative entry in a raw length tensor.
	ErrInvalidLength = errors.New("invalid sequence length")
)
