package dataset

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DocStart marks document boundaries in CoNLL files.
const DocStart = "-DOCSTART-"

// ErrMalformed is returned for lines that cannot be parsed.
var ErrMalformed = errors.New("malformed corpus")

// Sentence is one tagged sequence. Tags may be nil for unlabeled input.
type Sentence struct {
	Tokens []string
	Tags   []string
}

// Len returns the number of tokens.
func (s Sentence) Len() int { return len(s.Tokens) }

// Read parses CoNLL-style sentences from r. A line with a single column is
// an untagged token; every sentence must then be untagged.
func Read(r io.Reader) ([]Sentence, error) {
	var (
		out     []Sentence
		current Sentence
		tagged  = -1 // unknown until the first token
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current)
		}
		current = Sentence{}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			flush()
			continue
		}
		if fields[0] == DocStart {
			continue
		}

		hasTag := 0
		if len(fields) > 1 {
			hasTag = 1
		}
		if tagged == -1 {
			tagged = hasTag
		}
		if hasTag != tagged {
			return nil, errors.Wrapf(ErrMalformed, "line %d: mixes tagged and untagged tokens", line)
		}

		current.Tokens = append(current.Tokens, fields[0])
		if hasTag == 1 {
			current.Tags = append(current.Tags, fields[len(fields)-1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading line %d", line+1)
	}
	flush()
	return out, nil
}

// ReadFile parses the CoNLL file at path.
func ReadFile(path string) ([]Sentence, error) {
	//nolint:gosec // G304: corpus path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening corpus")
	}
	defer f.Close() //nolint:errcheck // read-only

	sentences, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return sentences, nil
}

// Write emits sentences in the format accepted by Read, with tags taken
// from tags when non-nil (one row per sentence) and from the sentences
// otherwise.
func Write(w io.Writer, sentences []Sentence, tags [][]string) error {
	bw := bufio.NewWriter(w)
	for i, s := range sentences {
		row := s.Tags
		if tags != nil {
			row = tags[i]
		}
		for j, tok := range s.Tokens {
			line := tok
			if j < len(row) {
				line += " " + row[j]
			}
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return errors.Wrap(err, "writing sentence")
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "writing sentence")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing output")
}
