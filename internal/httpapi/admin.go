package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courier/internal/auth"
	"github.com/you/courier/internal/storage"
)

const tenantPageSize = 10

// requireAdmin guards administrative routes with a bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := auth.VerifyToken(s.opts.SigningKey, token); err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	admin, err := s.store.GetAdminByUsername(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		s.log.Error("get admin", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.VerifyPassword(admin.PasswordHash, req.Password) {
		s.writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := auth.NewToken(s.opts.SigningKey, admin.Username, s.opts.TokenTTL)
	if err != nil {
		s.log.Error("mint token", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	search := r.URL.Query().Get("search")

	ctx := r.Context()
	tenants, err := s.store.ListTenants(ctx, search, tenantPageSize, (page-1)*tenantPageSize)
	if err != nil {
		s.log.Error("list tenants", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	total, err := s.store.CountTenants(ctx, search)
	if err != nil {
		s.log.Error("count tenants", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type tenantItem struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		APIKey    string  `json:"apiKey"`
		Status    string  `json:"status"`
		JID       *string `json:"jid,omitempty"`
		CreatedAt string  `json:"createdAt"`
	}
	items := make([]tenantItem, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, tenantItem{
			ID:        t.ID,
			Name:      t.Name,
			APIKey:    t.APIKey,
			Status:    string(t.Status),
			JID:       t.JID,
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		})
	}

	totalPages := (total + tenantPageSize - 1) / tenantPageSize
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tenants": items,
		"pagination": map[string]any{
			"currentPage": page,
			"totalPages":  totalPages,
			"totalItems":  total,
			"search":      search,
		},
	})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Name) < 3 {
		s.writeError(w, http.StatusBadRequest, "name must be at least 3 characters")
		return
	}

	apiKey, err := auth.NewAPIKey()
	if err != nil {
		s.log.Error("generate api key", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tenant, err := s.store.CreateTenant(r.Context(), req.Name, apiKey)
	if err != nil {
		s.log.Error("create tenant", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID), zap.String("name", tenant.Name))
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":     tenant.ID,
		"name":   tenant.Name,
		"apiKey": tenant.APIKey,
	})
}

// handleDeleteTenant kills the live connection and purges session state
// before removing the tenant row; the session row cascades with it.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx := context.WithoutCancel(r.Context())
	s.manager.DeleteSession(ctx, id)

	err := s.store.DeleteTenant(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	if err != nil {
		s.log.Error("delete tenant", zap.String("tenant_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("tenant deleted", zap.String("tenant_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	apiKey, err := auth.NewAPIKey()
	if err != nil {
		s.log.Error("generate api key", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	err = s.store.RotateAPIKey(r.Context(), id, apiKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Tenant not found")
		return
	}
	if err != nil {
		s.log.Error("rotate api key", zap.String("tenant_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("api key rotated", zap.String("tenant_id", id))
	s.writeJSON(w, http.StatusOK, map[string]string{"apiKey": apiKey})
}
