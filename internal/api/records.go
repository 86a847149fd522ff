package api

import (
	"errors"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/serverdb"
)

// recordsResponse is the JSON response for GET /v1/records.
type recordsResponse struct {
	Records []models.Split `json:"records"`
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (models.Split, bool) {
	var s models.Split
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return s, false
	}
	return s, true
}

// loadVisible fetches a record and enforces read access: private records
// are visible to their owner only.
func (s *Server) loadVisible(w http.ResponseWriter, r *http.Request, splitID string) (*models.Split, bool) {
	rec, err := s.store.GetRecord(splitID)
	if errors.Is(err, serverdb.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "record not found")
		return nil, false
	}
	if err != nil {
		logFor(r.Context()).Error("get record", "split", splitID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load record")
		return nil, false
	}
	if rec.IsPrivate && rec.CreatedBy != getUserFromContext(r.Context()).UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "record is private")
		return nil, false
	}
	return rec, true
}

// handleCreateRecord handles POST /v1/records.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if rec.CreatedBy == "" {
		rec.CreatedBy = user.UserID
	}
	if rec.CreatedBy != user.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "records can only be created for yourself")
		return
	}
	if err := models.ValidateSplit(&rec); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidBody, err.Error())
		return
	}

	created, err := s.store.CreateRecord(rec)
	if errors.Is(err, serverdb.ErrRecordExists) {
		s.metrics.writes.WithLabelValues("create", "conflict").Inc()
		writeError(w, http.StatusConflict, ErrCodeConflict, "record already exists")
		return
	}
	if err != nil {
		s.metrics.writes.WithLabelValues("create", "error").Inc()
		logFor(r.Context()).Error("create record", "split", rec.SplitID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create record")
		return
	}
	s.metrics.writes.WithLabelValues("create", "ok").Inc()
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateRecord handles PUT /v1/records/{id}. Shared records may be
// updated by any authenticated user; private ones by their owner only.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	splitID := r.PathValue("id")
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if rec.SplitID == "" {
		rec.SplitID = splitID
	}
	if rec.SplitID != splitID {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "split id does not match path")
		return
	}
	existing, ok := s.loadVisible(w, r, splitID)
	if !ok {
		return
	}
	rec.CreatedBy = existing.CreatedBy
	if rec.UpdatedBy == "" {
		rec.UpdatedBy = getUserFromContext(r.Context()).UserID
	}
	if err := models.ValidateSplit(&rec); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidBody, err.Error())
		return
	}

	updated, err := s.store.UpdateRecord(rec)
	if errors.Is(err, serverdb.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "record not found")
		return
	}
	if err != nil {
		s.metrics.writes.WithLabelValues("update", "error").Inc()
		logFor(r.Context()).Error("update record", "split", splitID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update record")
		return
	}
	s.metrics.writes.WithLabelValues("update", "ok").Inc()
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRecord handles DELETE /v1/records/{id}. Deletion is logical
// and limited to the owner.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	splitID := r.PathValue("id")
	existing, ok := s.loadVisible(w, r, splitID)
	if !ok {
		return
	}
	if existing.CreatedBy != getUserFromContext(r.Context()).UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the owner can delete a record")
		return
	}

	deleted, err := s.store.DeleteRecord(splitID)
	if errors.Is(err, serverdb.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "record not found")
		return
	}
	if err != nil {
		s.metrics.writes.WithLabelValues("delete", "error").Inc()
		logFor(r.Context()).Error("delete record", "split", splitID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete record")
		return
	}
	s.metrics.writes.WithLabelValues("delete", "ok").Inc()
	writeJSON(w, http.StatusOK, deleted)
}

// handleListRecords handles GET /v1/records?owner=U&include_deleted=true.
// The owner defaults to the caller; listing another user's records is
// forbidden.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = user.UserID
	}
	if owner != user.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "cannot list another user's records")
		return
	}
	includeDeleted := false
	if v := r.URL.Query().Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "include_deleted must be a boolean")
			return
		}
		includeDeleted = b
	}

	records, err := s.store.RecordsByOwner(owner, includeDeleted)
	if err != nil {
		logFor(r.Context()).Error("list records", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: records})
}

// handleGetRecord handles GET /v1/records/{id}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadVisible(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
