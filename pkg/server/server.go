package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/elonfeng/buzzradar/internal/store"
	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/source"
)

// Scorer is the engine surface the API exposes.
type Scorer interface {
	GetOrComputeScore(ctx context.Context, videoID string) (buzz.Record, error)
	Invalidate(ctx context.Context, videoID string) error
	RunBatch(ctx context.Context, videoIDs []string) (*buzz.BatchResult, error)
}

// RecordLister lists stored score records.
type RecordLister interface {
	ListRecords(ctx context.Context, opts store.RecordListOpts) ([]store.RankedRecord, error)
	SaveRecords(ctx context.Context, runID string, recs []buzz.Record) error
}

// maxBatchSize bounds POST /api/v1/batch.
const maxBatchSize = 200

// Server provides the HTTP API.
type Server struct {
	scorer   Scorer
	records  RecordLister
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	port     int
}

// New creates a new HTTP server. A nil gatherer serves the default registry.
func New(scorer Scorer, records RecordLister, gatherer prometheus.Gatherer, log logrus.FieldLogger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		scorer:   scorer,
		records:  records,
		gatherer: gatherer,
		log:      log,
		port:     port,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/v1/scores", s.handleRank)
	mux.HandleFunc("GET /api/v1/scores/{id}", s.handleScore)
	mux.HandleFunc("DELETE /api/v1/scores/{id}", s.handleInvalidate)
	mux.HandleFunc("POST /api/v1/batch", s.handleBatch)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	opts := store.RecordListOpts{Limit: 50, LatestOnly: true}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be a number")
			return
		}
		opts.MinScore = f
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = t
		}
	}

	recs, err := s.records.ListRecords(r.Context(), opts)
	if err != nil {
		s.log.WithError(err).Error("list records failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  recs,
		"count": len(recs),
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.scorer.GetOrComputeScore(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.WithError(err).WithField("video_id", id).Error("score failed")
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.scorer.Invalidate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	VideoIDs []string `json:"video_ids"`
}

type batchFailure struct {
	VideoID  string `json:"video_id"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

type batchResponse struct {
	RunID     string         `json:"run_id"`
	Requested int            `json:"requested"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Skipped   []string       `json:"skipped"`
	Failed    []batchFailure `json:"failed"`
	Records   []buzz.Record  `json:"records"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(req.VideoIDs) == 0 {
		writeError(w, http.StatusBadRequest, "video_ids is required")
		return
	}
	if len(req.VideoIDs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d video_ids per batch", maxBatchSize))
		return
	}

	res, err := s.scorer.RunBatch(r.Context(), req.VideoIDs)
	if res == nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprint(err))
		return
	}
	if serr := s.records.SaveRecords(r.Context(), res.RunID, res.Records()); serr != nil {
		s.log.WithError(serr).WithField("run_id", res.RunID).Error("failed to save records")
	}

	resp := batchResponse{
		RunID:     res.RunID,
		Requested: res.Requested,
		Attempted: res.Attempted,
		Succeeded: len(res.Succeeded),
		Skipped:   res.Skipped,
		Failed:    []batchFailure{},
		Records:   res.Records(),
	}
	for _, f := range res.Failed {
		resp.Failed = append(resp.Failed, batchFailure{VideoID: f.VideoID, Category: string(f.Category), Error: f.Err.Error()})
	}

	status := http.StatusOK
	if err != nil {
		s.log.WithError(err).WithField("run_id", res.RunID).Error("batch reported defects")
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var violation *buzz.InvariantViolation
	var ingest *buzz.IngestionError
	switch {
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &violation):
		return http.StatusInternalServerError
	case errors.As(err, &ingest):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
