package webhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

const (
	ListPath   = "/opendocs/list"
	EventsPath = "/opendocs/events"

	DefaultUserHeader = "X-Backend-User"
)

// ListService is the read side of the recency store.
type ListService interface {
	List(ctx context.Context, userID string) ([]opendocs.Document, error)
}

type DocumentEnricher interface {
	Enrich(ctx context.Context, docs []opendocs.Document) []opendocs.EnrichResult
}

// UserResolver extracts the current backend user from a request.
type UserResolver func(req *http.Request) (string, bool)

// HeaderUser trusts a header set by the authenticating proxy in front.
func HeaderUser(header string) UserResolver {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(req *http.Request) (string, bool) {
		user := strings.TrimSpace(req.Header.Get(header))
		return user, user != ""
	}
}

// ListResponse is the body of GET /opendocs/list.
type ListResponse struct {
	Success         bool                        `json:"success"`
	RecentDocuments []opendocs.EnrichedDocument `json:"recentDocuments"`
}

// EventRequestBody is the body of POST /opendocs/events. ID may be a JSON
// number or string; placeholder ids such as "NEW123" are accepted and ignored
// by the listener.
type EventRequestBody struct {
	Event       string          `json:"event"`
	Table       string          `json:"table"`
	ID          json.RawMessage `json:"id"`
	Application string          `json:"application,omitempty"`
}

type EventResponse struct {
	Disposition opendocs.Disposition `json:"disposition"`
}

func NewListHandler(svc ListService, enricher DocumentEnricher, users UserResolver, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if svc == nil || enricher == nil {
			http.Error(w, "recent documents not initialized", http.StatusServiceUnavailable)
			return
		}
		user, ok := users(req)
		if !ok {
			http.Error(w, "missing backend user", http.StatusUnauthorized)
			return
		}

		docs, err := svc.List(req.Context(), user)
		if err != nil {
			logger.Error().Err(err).Str("user", user).Msg("listing recent documents failed")
			writeJSON(w, http.StatusInternalServerError, ListResponse{RecentDocuments: []opendocs.EnrichedDocument{}}, logger)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse{
			Success:         true,
			RecentDocuments: opendocs.Visible(enricher.Enrich(req.Context(), docs)),
		}, logger)
	}
}

func NewEventsHandler(observer opendocs.RecordObserver, users UserResolver, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if observer == nil {
			http.Error(w, "listener not initialized", http.StatusServiceUnavailable)
			return
		}
		user, ok := users(req)
		if !ok {
			http.Error(w, "missing backend user", http.StatusUnauthorized)
			return
		}

		var body EventRequestBody
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16))
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		app := opendocs.ApplicationType(strings.ToLower(strings.TrimSpace(body.Application)))
		if app == "" {
			app = opendocs.ApplicationBackend
		}
		ev := opendocs.RecordEvent{
			UserID:      user,
			Application: app,
			Table:       strings.TrimSpace(body.Table),
			ID:          rawID(body.ID),
		}

		var d opendocs.Disposition
		switch strings.ToLower(strings.TrimSpace(body.Event)) {
		case "opened", "open":
			d = observer.RecordOpened(req.Context(), ev)
		case "saved", "updated":
			d = observer.RecordSaved(req.Context(), ev)
		case "deleted", "delete":
			d = observer.RecordDeleted(req.Context(), ev)
		default:
			http.Error(w, "unknown event", http.StatusBadRequest)
			return
		}
		logger.Debug().Str("user", user).Str("event", body.Event).Str("table", ev.Table).Str("id", ev.ID).Str("disposition", string(d)).Msg("record event")
		writeJSON(w, http.StatusAccepted, EventResponse{Disposition: d}, logger)
	}
}

// Handlers bundles what Mount wires onto a mux.
type Handlers struct {
	List     ListService
	Enricher DocumentEnricher
	Observer opendocs.RecordObserver
	Users    UserResolver
	Logger   zerolog.Logger
}

func Mount(mux *http.ServeMux, h Handlers) {
	users := h.Users
	if users == nil {
		users = HeaderUser(DefaultUserHeader)
	}
	mux.HandleFunc(ListPath, NewListHandler(h.List, h.Enricher, users, h.Logger))
	mux.HandleFunc(EventsPath, NewEventsHandler(h.Observer, users, h.Logger))
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("response write failed")
	}
}
