package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/queue"
	"github.com/joshdurbin/offgate/internal/service"
)

// Handler holds the HTTP handlers for the offline gateway
type Handler struct {
	gateway service.Gateway
}

// NewHandler creates a new HTTP handler
func NewHandler(gateway service.Gateway) *Handler {
	return &Handler{
		gateway: gateway,
	}
}

// Status handles GET /offgate/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.gateway.Status(r.Context())
	if err != nil {
		log.Printf("[ERROR] Failed to read gateway status: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// QueueList handles GET /offgate/queue
func (h *Handler) QueueList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mutations, err := h.gateway.ListQueued(r.Context())
	if err != nil {
		log.Printf("[ERROR] Failed to list queued mutations: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if mutations == nil {
		mutations = []*domain.QueuedMutation{}
	}
	writeJSON(w, http.StatusOK, mutations)
}

// QueueDetail handles DELETE /offgate/queue/{id}
func (h *Handler) QueueDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/offgate/queue/")
	if id == "" {
		http.Error(w, "Mutation id is required", http.StatusBadRequest)
		return
	}

	if err := h.gateway.RemoveQueued(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			http.Error(w, "Mutation not found", http.StatusNotFound)
			return
		}
		log.Printf("[ERROR] Failed to remove queued mutation '%s': %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /offgate/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.gateway.TriggerSync(r.Context())
	if err != nil {
		log.Printf("[ERROR] Sync failed: %v", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RecordsList handles GET /offgate/records and POST /offgate/records/sweep
func (h *Handler) RecordsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	keys := h.gateway.Records().Keys()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// RecordsSweep handles POST /offgate/records/sweep
func (h *Handler) RecordsSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	removed := h.gateway.Records().Sweep()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// recordResponse is the wire shape of a cached data record.
type recordResponse struct {
	Key        string          `json:"key"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	TTLSeconds int             `json:"ttl_seconds"`
	Expired    bool            `json:"expired"`
}

// RecordsDetail handles GET/PUT/DELETE /offgate/records/{key}
func (h *Handler) RecordsDetail(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/offgate/records/")
	if key == "" {
		http.Error(w, "Record key is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, exists := h.gateway.Records().Get(key)
		if !exists {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, recordResponse{
			Key:        record.Key,
			Data:       json.RawMessage(record.Data),
			Timestamp:  record.Timestamp,
			TTLSeconds: int(record.TTL / time.Second),
			Expired:    record.Expired(time.Now()),
		})

	case http.MethodPut:
		var req domain.RecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("[ERROR] Invalid JSON in record request: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.TTLSeconds <= 0 {
			http.Error(w, "ttl_seconds must be positive", http.StatusBadRequest)
			return
		}

		data, err := json.Marshal(req.Data)
		if err != nil {
			http.Error(w, "Invalid data payload", http.StatusBadRequest)
			return
		}

		h.gateway.Records().Set(key, data, time.Duration(req.TTLSeconds)*time.Second)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		h.gateway.Records().Delete(key)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Proxy is the catch-all gateway handler. GET requests are served under
// their classified strategy; POST/PUT/DELETE go through the mutation
// path; everything else passes through unmodified.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snapshot := h.gateway.HandleFetch(r.Context(), r)
		writeSnapshot(w, snapshot)

	case http.MethodPost, http.MethodPut, http.MethodDelete:
		snapshot, queued, err := h.gateway.HandleMutation(r.Context(), r)
		if err != nil {
			log.Printf("[ERROR] Failed to handle mutation %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if queued != nil {
			writeJSON(w, http.StatusAccepted, queued)
			return
		}
		writeSnapshot(w, snapshot)

	default:
		snapshot := h.gateway.Forward(r.Context(), r)
		writeSnapshot(w, snapshot)
	}
}

func writeSnapshot(w http.ResponseWriter, snapshot *domain.ResponseSnapshot) {
	for k, vs := range snapshot.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(snapshot.StatusCode)
	if _, err := w.Write(snapshot.Body); err != nil {
		log.Printf("Error writing response body: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
