package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/indexerhq/controlplane/internal/coordinator"
	"github.com/indexerhq/controlplane/internal/domain"
	"github.com/indexerhq/controlplane/internal/store"
)

// maxScriptBytes is the in-memory limit for parsing create's multipart
// form; file parts beyond it are spooled to temporary files, so it does
// not cap the size of the request body.
const maxScriptBytes = 32 << 20

// Handler translates HTTP requests into Coordinator calls.
type Handler struct {
	Coordinator *coordinator.Coordinator
}

// RegisterRoutes registers every indexer route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /v1/indexers", h.Create)
	mux.HandleFunc("GET /v1/indexers", h.List)
	mux.HandleFunc("GET /v1/indexers/{id}", h.Get)
	mux.HandleFunc("GET /v1/indexers/status/table/{name}", h.GetStatusByTable)
	mux.HandleFunc("GET /v1/indexers/status/{id}", h.GetStatus)
	mux.HandleFunc("POST /v1/indexers/start/{id}", h.Start)
	mux.HandleFunc("POST /v1/indexers/stop/{id}", h.Stop)
	mux.HandleFunc("DELETE /v1/indexers/delete/{id}", h.Delete)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// errorEnvelope is the structured error response returned for every
// non-2xx API response.
type errorEnvelope struct {
	Resource   string    `json:"resource"`
	Message    string    `json:"message"`
	HappenedAt time.Time `json:"happened_at"`
}

func writeError(w http.ResponseWriter, status int, resource, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{
		Resource:   resource,
		Message:    message,
		HappenedAt: time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeLookupError maps a Store lookup error to its HTTP status.
func writeLookupError(w http.ResponseWriter, resource string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, resource, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, resource, err.Error())
}

// Create handles POST /v1/indexers: multipart/form-data with a script.js
// file plus the indexer's type-dependent fields.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxScriptBytes); err != nil {
		writeError(w, http.StatusBadRequest, "indexer", fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	file, _, err := r.FormFile("script.js")
	if err != nil {
		writeError(w, http.StatusBadRequest, "indexer", "script.js file is required")
		return
	}
	defer file.Close()

	scriptBody, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "indexer", fmt.Sprintf("read script.js: %v", err))
		return
	}

	params := coordinator.CreateParams{
		Type:                   domain.Type(r.FormValue("indexer_type")),
		ScriptBody:             scriptBody,
		TargetURL:              optionalFormValue(r, "target_url"),
		TableName:              optionalFormValue(r, "table_name"),
		CustomConnectionString: optionalFormValue(r, "custom_connection_string"),
		IndexerID:              optionalFormValue(r, "indexer_id"),
	}

	if raw := r.FormValue("starting_block"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "indexer", "starting_block must be an integer")
			return
		}
		params.StartingBlock = &n
	}

	idx, err := h.Coordinator.Create(r.Context(), params)
	if err != nil {
		var valErr *domain.ValidationError
		if errors.As(err, &valErr) {
			writeError(w, http.StatusBadRequest, "indexer", valErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "indexer", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, idx)
}

// List handles GET /v1/indexers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.Coordinator.List(r.Context(), store.ListFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "indexer", err.Error())
		return
	}
	if records == nil {
		records = []*domain.Indexer{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /v1/indexers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	idx, err := h.Coordinator.Get(r.Context(), id)
	if err != nil {
		writeLookupError(w, "indexer", err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

// GetStatus handles GET /v1/indexers/status/{id}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.writeStatus(w, r, id)
}

// GetStatusByTable handles GET /v1/indexers/status/table/{name}.
func (h *Handler) GetStatusByTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	idx, err := h.Coordinator.GetByTableName(r.Context(), name)
	if err != nil {
		writeLookupError(w, "indexer", err)
		return
	}
	h.writeStatus(w, r, idx.ID)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, id string) {
	status, err := h.Coordinator.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "indexer", err.Error())
			return
		}
		// Any other probe error (timeout, bad status code, malformed
		// response) is a backend/RPC failure against the child, not the
		// control plane itself.
		writeError(w, http.StatusBadGateway, "indexer", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Start handles POST /v1/indexers/start/{id}.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Coordinator.Start(r.Context(), id, 1); err != nil {
		writeTransitionError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stop handles POST /v1/indexers/stop/{id}.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Coordinator.Stop(r.Context(), id); err != nil {
		writeTransitionError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Delete handles DELETE /v1/indexers/delete/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Coordinator.Delete(r.Context(), id); err != nil {
		writeTransitionError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeTransitionError maps a Coordinator state-machine error to its HTTP
// status. An illegal transition is rendered as 409 with the indexer id and
// the error text; the message does not include the record's current status.
func writeTransitionError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "indexer", err.Error())
		return
	}
	if errors.Is(err, coordinator.ErrIllegalTransition) {
		writeError(w, http.StatusConflict, "indexer", fmt.Sprintf("illegal transition for indexer %s: %v", id, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "indexer", err.Error())
}

func optionalFormValue(r *http.Request, key string) *string {
	v := r.FormValue(key)
	if v == "" {
		return nil
	}
	return &v
}
