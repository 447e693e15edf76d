package dataset

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/idcnn/internal/nn"
	"github.com/born-ml/idcnn/internal/tensor"
)

// LoadVectors reads whitespace-separated "word v1 ... vdim" lines and
// returns an embedding table of shape [words.Size()-1, dim] whose row r
// belongs to word id r+1. Rows of words without a vector are drawn with
// Xavier initialization. A leading "count dim" header line, as written by
// word2vec, is skipped. It also returns how many vocabulary words were found.
func LoadVectors(r io.Reader, words *Vocab, dim int, rng *rand.Rand) (*tensor.Tensor, int, error) {
	if dim < 1 || words.Size() < 2 {
		return nil, 0, errors.Errorf("vectors: dim %d and vocabulary size %d must be at least 1 and 2", dim, words.Size())
	}
	table := nn.Xavier(tensor.Shape{words.Size() - 1, dim}, nn.DenseFans(words.Size()-1, dim), 1, rng)
	found := make(map[int]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || (line == 1 && len(fields) == 2 && dim != 1) {
			continue
		}
		if len(fields) != dim+1 {
			return nil, 0, errors.Wrapf(ErrMalformed, "vectors line %d: %d values, want %d", line, len(fields)-1, dim)
		}
		id, ok := words.ID(fields[0])
		if !ok || id == PadID || found[id] {
			continue
		}
		row := table.Data()[(id-1)*dim : id*dim]
		for j, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "vectors line %d column %d", line, j+2)
			}
			row[j] = v
		}
		found[id] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrapf(err, "reading vectors line %d", line+1)
	}
	return table, len(found), nil
}

// LoadVectorsFile reads vectors from path.
func LoadVectorsFile(path string, words *Vocab, dim int, rng *rand.Rand) (*tensor.Tensor, int, error) {
	//nolint:gosec // G304: vectors path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "opening vectors")
	}
	defer f.Close() //nolint:errcheck // read-only

	table, n, err := LoadVectors(f, words, dim, rng)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "loading %s", path)
	}
	return table, n, nil
}
