package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/hannes/yaak-anonymizer/config"
	"github.com/hannes/yaak-anonymizer/pii"
	detectors "github.com/hannes/yaak-anonymizer/pii/detectors"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Handler serves the analyze, anonymize and audit endpoints
type Handler struct {
	config          *config.Config
	detectorManager *pii.DetectorManager
	analyzer        *pii.BatchAnalyzer
	anonymizer      *pii.BatchAnonymizer
	auditDB         pii.AuditDB
}

// NewHandler creates a handler around an already loaded detector manager and audit store
func NewHandler(cfg *config.Config, detectorManager *pii.DetectorManager, auditDB pii.AuditDB) *Handler {
	return &Handler{
		config:          cfg,
		detectorManager: detectorManager,
		analyzer:        pii.NewBatchAnalyzer(detectorManager),
		anonymizer:      pii.NewBatchAnonymizer(pii.NewEngine()),
		auditDB:         auditDB,
	}
}

// anonymizeRequest is the body of /v1/analyze and /v1/anonymize.
// Omitted options fall back to the configured defaults.
type anonymizeRequest struct {
	Data           pii.Value                     `json:"data"`
	Language       string                        `json:"language,omitempty"`
	KeysToSkip     []string                      `json:"keys_to_skip,omitempty"`
	Entities       []string                      `json:"entities,omitempty"`
	ScoreThreshold *float64                      `json:"score_threshold,omitempty"`
	Operators      map[string]pii.OperatorConfig `json:"operators,omitempty"`
}

func (req anonymizeRequest) options(defaults pii.Options) pii.Options {
	opts := defaults
	if req.Language != "" {
		opts.Language = req.Language
	}
	if req.KeysToSkip != nil {
		opts.KeysToSkip = req.KeysToSkip
	}
	if req.Entities != nil {
		opts.Entities = req.Entities
	}
	if req.ScoreThreshold != nil {
		opts.ScoreThreshold = *req.ScoreThreshold
	}
	if req.Operators != nil {
		opts.Operators = req.Operators
	}
	return opts
}

type anonymizeResponse struct {
	RequestID string         `json:"request_id"`
	Data      pii.Value      `json:"data"`
	Entities  map[string]int `json:"entities"`
}

type auditResponse struct {
	Records []pii.AuditRecord `json:"records"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// HandleAnalyze returns detections without substituting anything
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	opts := req.options(h.config.DefaultOptions())
	resp := map[string]interface{}{"request_id": requestIDFromContext(r.Context())}

	var (
		result interface{}
		key    string
		err    error
	)
	switch req.Data.Kind() {
	case pii.KindMapping:
		key = "nodes"
		result, err = h.analyzer.AnalyzeDict(r.Context(), req.Data.Mapping(), opts)
	case pii.KindSequence:
		key = "list_spans"
		result, err = h.analyzer.AnalyzeList(r.Context(), req.Data.Items(), opts)
	default:
		key = "spans"
		result, err = h.analyzer.AnalyzeText(r.Context(), req.Data.Text(), opts)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp[key] = result

	respondJSON(w, http.StatusOK, resp)
}

// HandleAnonymize analyzes the payload and returns it with every detected span substituted
func (h *Handler) HandleAnonymize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	opts := req.options(h.config.DefaultOptions())
	requestID := requestIDFromContext(r.Context())

	data, summary, operation, err := h.anonymize(r.Context(), req.Data, opts)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.config.Logging.LogPIIChanges {
		log.Printf("[Server] %s %s: %d leaves analyzed, entities %v", requestID, operation, summary.LeafCount, summary.EntityCounts)
	}
	if h.config.Logging.LogVerbose {
		log.Printf("[Server] %s original: %s", requestID, req.Data)
		log.Printf("[Server] %s anonymized: %s", requestID, data)
	}

	h.recordAudit(r.Context(), summary.Record(requestID, operation))

	respondJSON(w, http.StatusOK, anonymizeResponse{
		RequestID: requestID,
		Data:      data,
		Entities:  summary.EntityCounts,
	})
}

// anonymize dispatches on the payload shape: mapping, sequence, then single leaf
func (h *Handler) anonymize(ctx context.Context, data pii.Value, opts pii.Options) (pii.Value, pii.Summary, string, error) {
	switch data.Kind() {
	case pii.KindMapping:
		nodes, err := h.analyzer.AnalyzeDict(ctx, data.Mapping(), opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		out, err := h.anonymizer.AnonymizeDict(nodes, opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		return pii.MappingValue(out), pii.SummarizeNodes(nodes), pii.OperationAnonymizeDict, nil

	case pii.KindSequence:
		items := data.Items()
		spans, err := h.analyzer.AnalyzeList(ctx, items, opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		out, err := h.anonymizer.AnonymizeList(items, spans, opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		return pii.Sequence(out...), pii.SummarizeList(spans), pii.OperationAnonymizeList, nil

	default:
		spans, err := h.analyzer.AnalyzeText(ctx, data.Text(), opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		out, err := h.anonymizer.AnonymizeList([]pii.Value{data}, [][]detectors.Entity{spans}, opts)
		if err != nil {
			return pii.Value{}, pii.Summary{}, "", err
		}
		return out[0], pii.SummarizeText(spans), pii.OperationAnonymizeText, nil
	}
}

// HandleAudit lists recent audit records
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil || limit < 1 || limit > maxAuditLimit {
		http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxAuditLimit), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}

	records, err := h.auditDB.GetAudits(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	total, err := h.auditDB.GetAuditsCount(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, auditResponse{Records: records, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (anonymizeRequest, bool) {
	var req anonymizeRequest
	body := http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return req, false
		}
		log.Printf("[Server] ❌ Failed to decode request body: %v", err)
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return req, false
	}
	if req.Data.Kind() == pii.KindNull {
		http.Error(w, "data is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handler) recordAudit(ctx context.Context, record pii.AuditRecord) {
	if err := h.auditDB.InsertAudit(ctx, record); err != nil {
		log.Printf("[Server] ⚠️  Failed to record audit for %s: %v", record.RequestID, err)
		sentry.CaptureException(err)
		return
	}
	if h.config.Logging.DebugMode {
		log.Printf("[AuditDB] Recorded %s for request %s", record.Operation, record.RequestID)
	}
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pii.ErrInvalidArgument),
		errors.Is(err, pii.ErrUnsupportedShape),
		errors.Is(err, pii.ErrMalformedSpan),
		errors.Is(err, detectors.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	requestID := requestIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		log.Printf("[Server] ❌ %s %s failed: %v", requestID, r.URL.Path, err)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", requestID)
			scope.SetTag("path", r.URL.Path)
			sentry.CaptureException(err)
		})
	}

	respondJSON(w, status, map[string]string{
		"request_id": requestID,
		"error":      err.Error(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] Failed to write response: %v", err)
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// Close releases the detector and the audit store
func (h *Handler) Close() error {
	var errs []error
	if h.detectorManager != nil {
		if err := h.detectorManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.auditDB != nil {
		if err := h.auditDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
