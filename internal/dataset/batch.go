package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Example is an encoded sentence.
type Example struct {
	Index  int // position in the source corpus
	Tokens []int
	Labels []int // nil when untagged
}

// Len returns the number of tokens.
func (e Example) Len() int { return len(e.Tokens) }

// Batch is a padded group of examples.
//
// TokenIDs and Labels are (B, MaxLen) with padding id 0 past each length.
// RawLengths holds one column per example so that a plain sum decodes it.
type Batch struct {
	Examples   []Example
	TokenIDs   [][]int
	Labels     [][]int
	RawLengths [][]int
	MaxLen     int
}

// Size returns the number of examples.
func (b *Batch) Size() int { return len(b.Examples) }

// NumTokens returns the number of unpadded tokens.
func (b *Batch) NumTokens() int {
	n := 0
	for _, e := range b.Examples {
		n += e.Len()
	}
	return n
}

// Encode maps sentences to ids. Tags missing from tags are an error.
// Untagged sentences produce examples with nil Labels.
func Encode(sentences []Sentence, words, tags *Vocab) ([]Example, error) {
	out := make([]Example, len(sentences))
	for i, s := range sentences {
		ex := Example{Index: i, Tokens: make([]int, s.Len())}
		for j, tok := range s.Tokens {
			ex.Tokens[j], _ = words.ID(tok)
		}
		if s.Tags != nil {
			ex.Labels = make([]int, len(s.Tags))
			for j, tag := range s.Tags {
				id, ok := tags.ID(tag)
				if !ok {
					return nil, errors.Wrapf(ErrUnknownTag, "sentence %d token %d: %q", i, j, tag)
				}
				ex.Labels[j] = id
			}
		}
		out[i] = ex
	}
	return out, nil
}

// NewBatch pads examples to the longest one. MaxLen is at least 1 so that
// a batch of empty sentences still has a time axis.
func NewBatch(examples []Example) *Batch {
	maxLen := 1
	for _, e := range examples {
		maxLen = max(maxLen, e.Len())
	}
	b := &Batch{
		Examples:   examples,
		TokenIDs:   make([][]int, len(examples)),
		Labels:     make([][]int, len(examples)),
		RawLengths: make([][]int, len(examples)),
		MaxLen:     maxLen,
	}
	for i, e := range examples {
		b.TokenIDs[i] = make([]int, maxLen)
		copy(b.TokenIDs[i], e.Tokens)
		b.Labels[i] = make([]int, maxLen)
		copy(b.Labels[i], e.Labels)
		b.RawLengths[i] = []int{e.Len()}
	}
	return b
}

// Batches splits examples into batches of at most size. With a non-nil rng
// the examples are shuffled first; the input slice is not modified.
func Batches(examples []Example, size int, rng *rand.Rand) []*Batch {
	if size < 1 {
		size = 1
	}
	order := make([]Example, len(examples))
	copy(order, examples)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	var out []*Batch
	for start := 0; start < len(order); start += size {
		out = append(out, NewBatch(order[start:min(start+size, len(order))]))
	}
	return out
}
