// Package api exposes the ingestion and question pipelines over a JSON HTTP
// API. Payload shape validation lives here; pipeline semantics stay in the
// core packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/devanaclimgo/lectern/answer"
	"github.com/devanaclimgo/lectern/index"
	"github.com/devanaclimgo/lectern/retrieve"
)

const (
	maxUploadBytes = 64 << 20
	requestTimeout = 2 * time.Minute
)

// Server routes HTTP requests to the pipeline services.
type Server struct {
	indexer     *index.Service
	retriever   *retrieve.Retriever
	synthesizer *answer.Synthesizer
	defaults    retrieve.Params
	logger      *log.Logger
	handler     http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestResponse struct {
	SourceID   string `json:"sourceId"`
	ChunkCount int    `json:"chunkCount"`
}

type askRequest struct {
	Question        string   `json:"question"`
	K               int      `json:"k"`
	SimilarityFloor *float64 `json:"similarityFloor"`
	TokenBudget     int      `json:"tokenBudget"`
}

type askResponse struct {
	Answer   string      `json:"answer"`
	ChunkIDs []string    `json:"chunkIds"`
	Sources  []askSource `json:"sources"`
}

type askSource struct {
	SourceID   string  `json:"sourceId"`
	Score      float64 `json:"score"`
	ChunkCount int     `json:"chunkCount"`
}

// New constructs a Server over already-wired pipeline services.
func New(indexer *index.Service, retriever *retrieve.Retriever, synthesizer *answer.Synthesizer, defaults retrieve.Params, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		indexer:     indexer,
		retriever:   retriever,
		synthesizer: synthesizer,
		defaults:    defaults,
		logger:      logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /sources/{id}/audio", s.handleUploadAudio)
	mux.HandleFunc("POST /sources/{id}/notes", s.handleUploadNotes)
	mux.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource)
	mux.HandleFunc("POST /questions", s.handleAsk)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	if sourceID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source id"))
		return
	}

	audio, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read audio payload: %w", err))
		return
	}
	if len(audio) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("empty audio payload"))
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	chunks, err := s.indexer.Ingest(ctx, sourceID, audio, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, ingestStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, ingestResponse{SourceID: sourceID, ChunkCount: len(chunks)})
}

func (s *Server) handleUploadNotes(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	if sourceID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source id"))
		return
	}

	data, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read notes payload: %w", err))
		return
	}

	format := index.DetectNotesFormat(r.Header.Get("Content-Type"), r.URL.Query().Get("filename"))
	if format == index.NotesUnknown {
		s.writeError(w, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported notes format"))
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	chunks, err := s.indexer.IngestNotes(ctx, sourceID, data, format)
	if err != nil {
		s.writeError(w, ingestStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, ingestResponse{SourceID: sourceID, ChunkCount: len(chunks)})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	if sourceID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source id"))
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := s.indexer.Remove(ctx, sourceID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "source removed"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	params := s.defaults
	if req.K > 0 {
		params.K = req.K
	}
	if req.SimilarityFloor != nil {
		params.SimilarityFloor = *req.SimilarityFloor
	}
	if req.TokenBudget > 0 {
		params.TokenBudget = req.TokenBudget
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	retrieval, err := s.retriever.Retrieve(ctx, req.Question, params)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("retrieve context: %w", err))
		return
	}

	result, err := s.synthesizer.Answer(ctx, req.Question, retrieval)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	resp := askResponse{
		Answer:   result.Text,
		ChunkIDs: result.ChunkIDs,
		Sources:  make([]askSource, len(result.Sources)),
	}
	for i, src := range result.Sources {
		resp.Sources[i] = askSource{
			SourceID:   src.SourceID,
			Score:      src.Score,
			ChunkCount: src.Insight.ChunkCount,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func ingestStatus(err error) int {
	if errors.Is(err, index.ErrIngestion) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func requestContext(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, maxUploadBytes))
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
