package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/models"
)

const superAdminKeyName = "superadmin_api_key"

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response write failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleBootstrap mints the super-admin API key on first call and returns
// the stored key on every call after, so re-running deployment scripts is
// safe. The endpoint is only useful before a key exists; afterwards it
// requires the key it minted.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if s.postgres == nil {
		s.writeError(w, http.StatusServiceUnavailable, "bootstrap requires a database")
		return
	}

	existing, err := s.postgres.GetGatewayKey(r.Context(), superAdminKeyName)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, "key lookup failed")
		return
	}
	if existing != "" {
		if !s.superAdminAuthorized(r, existing) {
			s.writeError(w, http.StatusUnauthorized, "super-admin key required")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"super_admin_api_key": existing,
			"created":             false,
		})
		return
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, "key generation failed")
		return
	}
	key := "sk-" + hex.EncodeToString(buf)

	stored, err := s.postgres.PutGatewayKeyIfAbsent(r.Context(), superAdminKeyName, key)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "key persistence failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"super_admin_api_key": stored,
		"created":             stored == key,
	})
}

func (s *Server) superAdminAuthorized(r *http.Request, key string) bool {
	presented := bearerToken(r)
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1
}

// requireSuperAdmin gates the admin sync endpoints.
func (s *Server) requireSuperAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.postgres == nil {
		s.writeError(w, http.StatusServiceUnavailable, "admin endpoints require a database")
		return false
	}
	key, err := s.postgres.GetGatewayKey(r.Context(), superAdminKeyName)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "gateway not bootstrapped")
		return false
	}
	if !s.superAdminAuthorized(r, key) {
		s.writeError(w, http.StatusUnauthorized, "super-admin key required")
		return false
	}
	return true
}

// syncLockTTL bounds how long a trigger holds the Redis debounce lock if
// a replica dies before releasing it.
const syncLockTTL = 5 * time.Minute

// handleTriggerSync starts an inventory, orders or full sync for one
// tenant. A second trigger while a job of the same type is running gets
// 409. The Redis lock fails duplicate triggers fast across replicas; the
// database's uniqueness guarantee remains the real mutual exclusion.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperAdmin(w, r) {
		return
	}
	vars := mux.Vars(r)
	tenantID, syncType := vars["tenant_id"], vars["sync_type"]
	switch syncType {
	case models.SyncTypeInventory, models.SyncTypeOrders, models.SyncTypeFull:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown sync type: "+syncType)
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	adapter, err := s.registry.ForTenant(tenant)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	syncer, ok := adapter.(adapters.InventorySyncer)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "ad server does not support sync")
		return
	}

	acquired, err := s.syncLock.Acquire(r.Context(), tenantID, syncType, syncLockTTL)
	if err != nil {
		// A broken Redis never blocks syncs; the job row conflict below
		// still catches duplicates.
		s.logger.Warn("sync lock unavailable",
			zap.String("tenant_id", tenantID), zap.Error(err))
	} else if !acquired {
		s.writeError(w, http.StatusConflict, "a "+syncType+" sync is already running")
		return
	}
	defer s.syncLock.Release(r.Context(), tenantID, syncType)

	force := r.URL.Query().Get("force") == "true"
	var result *adapters.SyncSummaryResult
	switch syncType {
	case models.SyncTypeInventory:
		result, err = syncer.SyncInventory(r.Context(), force)
	case models.SyncTypeOrders:
		result, err = syncer.SyncOrders(r.Context(), force)
	case models.SyncTypeFull:
		result, err = syncer.SyncFull(r.Context(), force)
	}
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.writeError(w, http.StatusConflict, "a "+syncType+" sync is already running")
			return
		}
		s.logger.Error("sync failed",
			zap.String("tenant_id", tenantID),
			zap.String("sync_type", syncType),
			zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sync_id":   result.SyncID,
		"sync_type": syncType,
		"status":    result.Status,
		"summary":   result.Summary,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperAdmin(w, r) {
		return
	}
	vars := mux.Vars(r)
	job, err := s.store.GetSyncJob(r.Context(), vars["tenant_id"], vars["sync_id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, "sync job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperAdmin(w, r) {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	jobs, err := s.store.ListSyncJobs(r.Context(), mux.Vars(r)["tenant_id"], limit, offset, q.Get("status"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "sync history unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sync_jobs": jobs})
}
