// Package server exposes a trained tagger over HTTP.
//
// Routes:
//
//	GET  /healthz                          liveness
//	GET  /v1/model                         checkpoint and network description
//	GET  /v1/vocab/{words|tags}            vocabulary size and entries
//	POST /v1/tag                           {"sentences": [["EU", "rejects", ...], ...]}
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/born-ml/idcnn/internal/dataset"
	"github.com/born-ml/idcnn/internal/idcnn"
	"github.com/born-ml/idcnn/internal/serialization"
	"github.com/born-ml/idcnn/internal/train"
)

// MaxRequestBytes bounds the body of a tag request.
const MaxRequestBytes = 4 << 20

// Server answers tagging requests with a fixed model.
type Server struct {
	model     *idcnn.Model
	header    serialization.Header
	words     *dataset.Vocab
	tags      *dataset.Vocab
	batchSize int
	logger    *slog.Logger
}

// New creates a server. The model's length decoder is set to a plain sum,
// matching the batches built from requests.
func New(model *idcnn.Model, header serialization.Header, words, tags *dataset.Vocab, batchSize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	model.Lengths = idcnn.SumDecoder{}
	return &Server{
		model:     model,
		header:    header,
		words:     words,
		tags:      tags,
		batchSize: max(1, batchSize),
		logger:    logger,
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.Health()).Methods(http.MethodGet)
	r.HandleFunc("/v1/model", s.Describe()).Methods(http.MethodGet)
	r.HandleFunc("/v1/vocab/{name:(?:words|tags)}", s.Vocab()).Methods(http.MethodGet)
	r.HandleFunc("/v1/tag", s.Tag()).Methods(http.MethodPost)
	return r
}

// Health reports liveness.
func (s *Server) Health() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	Version    string                        `json:"version"`
	RunID      string                        `json:"run_id"`
	CreatedAt  time.Time                     `json:"created_at"`
	Network    idcnn.NetworkConfig           `json:"network"`
	Parameters int                           `json:"parameters"`
	Checkpoint *serialization.CheckpointMeta `json:"checkpoint,omitempty"`
}

// Describe returns ModelInfo.
func (s *Server) Describe() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ModelInfo{
			Version:    s.header.Version,
			RunID:      s.header.RunID,
			CreatedAt:  s.header.CreatedAt,
			Network:    s.model.Config,
			Parameters: s.model.NumParameters(),
			Checkpoint: s.header.Checkpoint,
		})
	}
}

// VocabResponse lists a vocabulary.
type VocabResponse struct {
	Name  string   `json:"name"`
	Size  int      `json:"size"`
	Items []string `json:"items"`
}

// Vocab returns the words or tags, truncated by the optional limit query
// parameter.
func (s *Server) Vocab() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		v := s.words
		if name == "tags" {
			v = s.tags
		}
		items := v.Items()
		if q := r.URL.Query().Get("limit"); q != "" {
			limit, err := strconv.Atoi(q)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			items = items[:min(limit, len(items))]
		}
		writeJSON(w, http.StatusOK, VocabResponse{Name: name, Size: v.Size(), Items: items})
	}
}

// TagRequest holds tokenized sentences.
type TagRequest struct {
	Sentences [][]string `json:"sentences"`
}

// TagResponse holds one tag per input token.
type TagResponse struct {
	Tags [][]string `json:"tags"`
}

// Tag decodes the best tag sequence of every sentence.
func (s *Server) Tag() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req TagRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}

		sentences := make([]dataset.Sentence, len(req.Sentences))
		for i, toks := range req.Sentences {
			sentences[i] = dataset.Sentence{Tokens: toks}
		}
		examples, err := dataset.Encode(sentences, s.words, s.tags)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		paths, err := train.Predict(r.Context(), s.model, examples, s.batchSize)
		if err != nil {
			s.logger.Error("tagging failed", "err", err)
			writeError(w, http.StatusInternalServerError, "tagging failed")
			return
		}

		resp := TagResponse{Tags: make([][]string, len(paths))}
		tokens := 0
		for i, p := range paths {
			resp.Tags[i] = s.tags.Decode(p)
			tokens += len(p)
		}
		s.logger.Debug("tagged", "sentences", len(paths), "tokens", tokens, "elapsed", time.Since(start))
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
