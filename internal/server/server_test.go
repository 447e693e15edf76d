package server_test

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/idcnn/internal/autodiff/ops"
	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/server"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	words, err := dataset.NewWordVocabFromList([]string{dataset.PadToken, dataset.UnkToken, "EU", "rejects", "German"})
	require.NoError(t, err)
	tags := dataset.NewTagVocabFromList([]string{"B-ORG", "B-MISC", "O"})

	model, err := idcnn.Build(idcnn.NetworkConfig{
		NumClasses:    tags.Size(),
		VocabSize:     words.Size(),
		EmbeddingSize: 4,
		Repeats:       1,
		Nonlinearity:  ops.ReLU,
		Layers:        []idcnn.LayerSpec{{Name: "conv1", Dilation: 1, Width: 3, Filters: 4, Take: true}},
	}, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	s := server.New(model, serialization.Header{Version: "test", RunID: "run"}, words, tags, 2, nil)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestTag(t *testing.T) {
	ts := newServer(t)
	body := `{"sentences": [["EU", "rejects", "German", "unknown"], [], ["EU"]]}`
	resp, err := http.Post(ts.URL+"/v1/tag", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[server.TagResponse](t, resp)
	require.Len(t, got.Tags, 3)
	assert.Len(t, got.Tags[0], 4)
	assert.Empty(t, got.Tags[1])
	assert.Len(t, got.Tags[2], 1)
	for _, tag := range got.Tags[0] {
		assert.Contains(t, []string{"B-ORG", "B-MISC", "O"}, tag)
	}
}

func TestTag_BadRequest(t *testing.T) {
	ts := newServer(t)
	for _, body := range []string{`{`, `{"sentence": []}`} {
		resp, err := http.Post(ts.URL+"/v1/tag", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/tag")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestDescribeAndVocab(t *testing.T) {
	ts := newServer(t)

	resp, err := http.Get(ts.URL + "/v1/model")
	require.NoError(t, err)
	info := decode[server.ModelInfo](t, resp)
	assert.Equal(t, "run", info.RunID)
	assert.Equal(t, 3, info.Network.NumClasses)
	assert.Positive(t, info.Parameters)

	resp, err = http.Get(ts.URL + "/v1/vocab/tags")
	require.NoError(t, err)
	v := decode[server.VocabResponse](t, resp)
	assert.Equal(t, []string{"B-ORG", "B-MISC", "O"}, v.Items)

	resp, err = http.Get(ts.URL + "/v1/vocab/words?limit=2")
	require.NoError(t, err)
	v = decode[server.VocabResponse](t, resp)
	assert.Equal(t, 5, v.Size)
	assert.Equal(t, []string{dataset.PadToken, dataset.UnkToken}, v.Items)

	resp, err = http.Get(ts.URL + "/v1/vocab/words?limit=x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/vocab/other")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
