package idcnn

import "fmt"

// LengthDecoder turns a raw (B, K) length tensor into one length per example.
type LengthDecoder interface {
	Decode(raw [][]int) ([]int, error)
}

// ZeroSlotDecoder sums each row and adds Correction for every zero entry:
// length = Σ row + Correction × count(row == 0).
//
// Correction 2 matches batches that mark each sentence boundary with a zero
// slot standing for two boundary tokens.
type ZeroSlotDecoder struct {
	Correction int
}

// DefaultLengthDecoder is the decoder models are built with.
var DefaultLengthDecoder LengthDecoder = ZeroSlotDecoder{Correction: 2}

// Decode implements LengthDecoder. Negative entries wrap ErrInvalidLength.
func (d ZeroSlotDecoder) Decode(raw [][]int) ([]int, error) {
	lengths := make([]int, len(raw))
	for b, row := range raw {
		n := 0
		for k, v := range row {
			switch {
			case v < 0:
				return nil, fmt.Errorf("%w: entry (%d, %d) is %d", ErrInvalidLength, b, k, v)
			case v == 0:
				n += d.Correction
			default:
				n += v
			}
		}
		lengths[b] = n
	}
	return lengths, nil
}

// SumDecoder sums each row with no zero-slot correction.
type SumDecoder struct{}

// Decode implements LengthDecoder.
func (SumDecoder) Decode(raw [][]int) ([]int, error) {
	return ZeroSlotDecoder{}.Decode(raw)
}

// DecodeLengths applies DefaultLengthDecoder.
func DecodeLengths(raw [][]int) ([]int, error) {
	return DefaultLengthDecoder.Decode(raw)
}
