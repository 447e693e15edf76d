package dataset

import (
	"sort"

	"github.com/pkg/errors"
)

// Reserved word ids.
const (
	PadID = 0
	UnkID = 1

	PadToken = "<PAD>"
	UnkToken = "<UNK>"
)

// ErrUnknownTag is returned when a tag is missing from the tag vocabulary.
var ErrUnknownTag = errors.New("unknown tag")

// Vocab maps strings to dense ids and back.
type Vocab struct {
	index map[string]int
	items []string
	words bool // reserves PadID and UnkID
}

// NewWordVocab builds the word vocabulary of sentences. Words seen fewer
// than minCount times map to UnkID. Ids are assigned by descending
// frequency, ties broken alphabetically.
func NewWordVocab(sentences []Sentence, minCount int) *Vocab {
	counts := make(map[string]int)
	for _, s := range sentences {
		for _, tok := range s.Tokens {
			counts[tok]++
		}
	}
	kept := make([]string, 0, len(counts))
	for w, c := range counts {
		if c >= minCount && w != PadToken && w != UnkToken {
			kept = append(kept, w)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if counts[kept[i]] != counts[kept[j]] {
			return counts[kept[i]] > counts[kept[j]]
		}
		return kept[i] < kept[j]
	})
	return newVocab(append([]string{PadToken, UnkToken}, kept...), true)
}

// NewTagVocab builds the tag vocabulary of sentences, sorted so that ids
// do not depend on corpus order.
func NewTagVocab(sentences []Sentence) *Vocab {
	seen := make(map[string]bool)
	var tags []string
	for _, s := range sentences {
		for _, tag := range s.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return newVocab(tags, false)
}

// NewWordVocabFromList restores a word vocabulary saved with Items.
func NewWordVocabFromList(items []string) (*Vocab, error) {
	if len(items) < 2 || items[PadID] != PadToken || items[UnkID] != UnkToken {
		return nil, errors.Errorf("word list must start with %s and %s", PadToken, UnkToken)
	}
	return newVocab(items, true), nil
}

// NewTagVocabFromList restores a tag vocabulary saved with Items.
func NewTagVocabFromList(items []string) *Vocab {
	return newVocab(items, false)
}

func newVocab(items []string, words bool) *Vocab {
	v := &Vocab{index: make(map[string]int, len(items)), items: items, words: words}
	for i, it := range items {
		v.index[it] = i
	}
	return v
}

// Size returns the number of ids, including reserved ones.
func (v *Vocab) Size() int { return len(v.items) }

// Items returns the strings in id order. Callers must not modify it.
func (v *Vocab) Items() []string { return v.items }

// ID returns the id of s. Unknown words map to UnkID; unknown tags report
// false.
func (v *Vocab) ID(s string) (int, bool) {
	id, ok := v.index[s]
	if !ok && v.words {
		return UnkID, false
	}
	return id, ok
}

// String returns the string for id, or "" when out of range.
func (v *Vocab) String(id int) string {
	if id < 0 || id >= len(v.items) {
		return ""
	}
	return v.items[id]
}

// Decode maps ids back to strings.
func (v *Vocab) Decode(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.String(id)
	}
	return out
}
