package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courier/internal/storage"
)

type sendRequest struct {
	TenantID string `json:"tenantId"`
	APIKey   string `json:"apiKey"`
	To       string `json:"to"`
	Message  string `json:"message"`
}

type sendResponse struct {
	Status        string `json:"status"`
	JobID         string `json:"jobId"`
	QueuePosition int64  `json:"queuePosition"`
}

// handleSend authenticates the tenant, records a QUEUED message log, persists
// the job, and enqueues it before responding.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.To) < 5 || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "to and message are required")
		return
	}

	ctx := r.Context()
	tenant, err := s.store.GetTenant(ctx, req.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	if err != nil {
		s.log.Error("get tenant", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if subtle.ConstantTimeCompare([]byte(tenant.APIKey), []byte(req.APIKey)) != 1 {
		s.writeError(w, http.StatusUnauthorized, "Invalid API Key")
		return
	}

	logID, err := s.store.InsertMessageLog(ctx, tenant.ID, req.To, req.Message)
	if err != nil {
		s.log.Error("insert message log", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	jobID, err := s.store.InsertJob(ctx, storage.InsertJobParams{
		TenantID:    tenant.ID,
		To:          req.To,
		Message:     req.Message,
		LogID:       logID,
		MaxAttempts: s.opts.MaxAttempts,
	})
	if err != nil {
		s.log.Error("insert job", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	depth, err := s.queue.Enqueue(ctx, jobID)
	if err != nil {
		s.log.Error("enqueue job", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, sendResponse{
		Status:        "queued",
		JobID:         jobID,
		QueuePosition: depth,
	})
}
