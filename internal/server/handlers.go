package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
)

// decodeBody decodes a size-capped JSON body into v. It reports false after
// writing a 400 response.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Kind: "bad_request"})
			return false
		}
		writeBadRequest(w, r, "invalid request body")
		return false
	}
	return true
}

// handleAsk handles POST /api/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeBadRequest(w, r, "query is required")
		return
	}
	if req.K < 0 {
		writeBadRequest(w, r, "k must not be negative")
		return
	}

	start := time.Now()
	res, err := s.cfg.Query.Ask(r.Context(), &query.Request{
		Query:      req.Query,
		Collection: req.Collection,
		K:          req.K,
		SessionID:  req.SessionID,
	})
	outcome := rag.Kind(err)
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.FallbackFrom != "" {
		s.metrics.fallbacksTotal.Inc()
	}

	resp := askResponse{
		Answer:       res.Answer,
		Collection:   res.Collection,
		FallbackFrom: res.FallbackFrom,
		Sources:      make([]sourceHit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		resp.Sources = append(resp.Sources, sourceHit{
			ID:         h.ID,
			Score:      h.Score,
			Source:     h.Payload.Meta.Source,
			ChunkIndex: h.Payload.Meta.ChunkIndex,
			Ref:        h.Payload.Meta.Ref,
			Text:       h.Payload.Text,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleIngest handles POST /api/ingest. Every ref must pass s.cfg.Refs
// before anything is loaded. The run is synchronous; the response carries the
// final report.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ingest == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "ingestion is not enabled on this server", Kind: "configuration"})
		return
	}
	var req ingestRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	refs := make([]string, 0, len(req.Refs))
	for _, ref := range req.Refs {
		if ref = strings.TrimSpace(ref); ref == "" {
			continue
		}
		checked, err := s.cfg.Refs.Check(ref)
		if err != nil {
			logging.FromContext(r.Context()).Warn("server: ingest ref rejected",
				slog.String("ref", ref), slog.Any("error", err))
			writeJSON(w, r, http.StatusForbidden, errorResponse{Error: err.Error(), Kind: "forbidden_ref"})
			return
		}
		refs = append(refs, checked)
	}
	if len(refs) == 0 {
		writeBadRequest(w, r, "refs is required")
		return
	}

	log := logging.FromContext(r.Context())
	report, err := s.cfg.Ingest.IngestRefs(r.Context(), req.Collection, refs, func(msg string) {
		log.Debug("ingest: progress", slog.String("msg", msg))
	})
	s.metrics.ingestRequestsTotal.WithLabelValues(rag.Kind(err)).Inc()
	if report != nil {
		s.metrics.ingestChunksTotal.WithLabelValues("stored").Add(float64(report.Stored))
		s.metrics.ingestChunksTotal.WithLabelValues("not_stored").Add(float64(report.NotStored))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ingestResponse{
		Collection:       report.Collection,
		Documents:        report.Documents,
		Chunks:           report.Chunks,
		Stored:           report.Stored,
		NotStored:        report.NotStored,
		SkippedDocuments: report.SkippedDocuments,
		FirstID:          report.FirstID,
	})
}

// handleCollections handles GET /api/collections.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.cfg.Store.ListCollections(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := collectionsResponse{Collections: make([]collectionInfo, 0, len(names))}
	for _, name := range names {
		info, err := s.cfg.Store.Collection(r.Context(), name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Collections = append(resp.Collections, collectionInfo{
			Name:       info.Name,
			Dimensions: info.Dimensions,
			Metric:     string(info.Metric),
			Points:     info.Points,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
