package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/braindump/internal/dates"
	"github.com/pbaille/braindump/internal/domain"
	"github.com/pbaille/braindump/internal/fetcher"
	"github.com/pbaille/braindump/internal/pipeline"
	"github.com/pbaille/braindump/internal/store"
)

// OwnerHeader names the request header carrying the owner id
const OwnerHeader = "X-Owner-ID"

// Store is the persistence the API reads and writes directly
type Store interface {
	AddFragment(ctx context.Context, ownerID, content string) (*domain.RawFragment, error)
	PendingFragments(ctx context.Context, ownerID string) ([]domain.RawFragment, error)
	DeleteFragment(ctx context.Context, ownerID, id string) error
	ListOrganized(ctx context.Context, ownerID string, includeCompleted bool) ([]domain.OrganizedItem, error)
	FindItem(ctx context.Context, ownerID, idPrefix string) (*domain.OrganizedItem, error)
	SetCompleted(ctx context.Context, ownerID, id string, completed bool) error
	ListArchive(ctx context.Context, ownerID string, limit int) ([]domain.OrganizedItem, error)
}

// Organizer runs organization passes
type Organizer interface {
	Organize(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options configures a Server
type Options struct {
	Addr      string
	Store     Store
	Organizer Organizer
	// Fetcher is used for captures with "fetch": true; nil disables fetching
	Fetcher *fetcher.Fetcher
	// Owner and Timezone apply when a request does not name its own
	Owner    string
	Timezone string
	Logger   *zap.Logger
}

// Server handles HTTP requests for the braindump API
type Server struct {
	store     Store
	organizer Organizer
	fetcher   *fetcher.Fetcher
	owner     string
	timezone  string
	addr      string
	logger    *zap.Logger
}

// New creates a new API server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		store:     opts.Store,
		organizer: opts.Organizer,
		fetcher:   opts.Fetcher,
		owner:     opts.Owner,
		timezone:  opts.Timezone,
		addr:      opts.Addr,
		logger:    opts.Logger,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Fragments
	mux.HandleFunc("GET /fragments", s.listFragments)
	mux.HandleFunc("POST /fragments", s.addFragment)
	mux.HandleFunc("DELETE /fragments/{id}", s.deleteFragment)

	// Organization
	mux.HandleFunc("POST /organize", s.organize)
	mux.HandleFunc("GET /organized", s.listOrganized)
	mux.HandleFunc("POST /organized/{id}/complete", s.completeItem)
	mux.HandleFunc("GET /archive", s.listArchive)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+OwnerHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) ownerOf(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
		return owner
	}
	return s.owner
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AddFragmentRequest is the request body for capturing a fragment
type AddFragmentRequest struct {
	Content string `json:"content"`
	// Fetch replaces a URL content with the page title and excerpt
	Fetch bool `json:"fetch,omitempty"`
}

func (s *Server) addFragment(w http.ResponseWriter, r *http.Request) {
	var req AddFragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	if req.Fetch && s.fetcher != nil && fetcher.IsURL(content) {
		page, err := s.fetcher.Fetch(r.Context(), content)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		content = page.Fragment()
	}

	frag, err := s.store.AddFragment(r.Context(), s.ownerOf(r), content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, frag)
}

func (s *Server) listFragments(w http.ResponseWriter, r *http.Request) {
	frags, err := s.store.PendingFragments(r.Context(), s.ownerOf(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if frags == nil {
		frags = []domain.RawFragment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fragments": frags})
}

func (s *Server) deleteFragment(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteFragment(r.Context(), s.ownerOf(r), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "fragment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrganizeRequest is the optional body of POST /organize
type OrganizeRequest struct {
	Timezone string `json:"timezone,omitempty"`
	// Date overrides today's date as YYYY-MM-DD
	Date string `json:"date,omitempty"`
}

// OrganizeResponse reports one pass
type OrganizeResponse struct {
	AnchorDate   string                 `json:"anchor_date"`
	Timezone     string                 `json:"timezone"`
	Inserted     []domain.OrganizedItem `json:"inserted"`
	Enriched     []domain.OrganizedItem `json:"enriched"`
	Duplicates   []string               `json:"duplicates"`
	Consumed     int                    `json:"consumed_fragments"`
	NulledFields int                    `json:"nulled_fields"`
	ArchiveError string                 `json:"archive_error,omitempty"`

	// ItemsByCategory holds inserted and enriched items keyed by category label
	ItemsByCategory map[string][]domain.OrganizedItem `json:"items_by_category"`
}

func (s *Server) organize(w http.ResponseWriter, r *http.Request) {
	var req OrganizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	preq := pipeline.Request{OwnerID: s.ownerOf(r), Timezone: req.Timezone}
	if preq.Timezone == "" {
		preq.Timezone = s.timezone
	}
	if req.Date != "" {
		anchor, err := dates.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		preq.AnchorDate = anchor
	}

	res, err := s.organizer.Organize(r.Context(), preq)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	resp := OrganizeResponse{
		AnchorDate:   res.AnchorDate.Format(dates.DateLayout),
		Timezone:     res.Timezone,
		Inserted:     nonNil(res.Inserted),
		Enriched:     nonNil(res.Enriched),
		Duplicates:   res.Duplicates,
		Consumed:     len(res.Consumed),
		NulledFields: res.NulledFields,

		ItemsByCategory: byLabel(res.ByCategory()),
	}
	if resp.Duplicates == nil {
		resp.Duplicates = []string{}
	}
	if res.ArchiveErr != nil {
		resp.ArchiveError = res.ArchiveErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a pipeline failure onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInputEmpty):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrOracleTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrResponseParse), errors.Is(err, pipeline.ErrOracleUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}

	var pe *pipeline.PurgeError
	if errors.As(err, &pe) {
		body["reconcile"] = true
		body["committed"] = pe.Committed
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("organize failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (s *Server) listOrganized(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, _ := strconv.ParseBool(q.Get("all"))

	var only domain.Category
	if c := q.Get("category"); c != "" {
		cat, ok := domain.ParseCategory(c)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", c))
			return
		}
		only = cat
	}

	items, err := s.store.ListOrganized(r.Context(), s.ownerOf(r), all)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if only != "" {
		items = domain.Group(items)[only]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      nonNil(items),
		"categories": byLabel(domain.Group(items)),
	})
}

// byLabel keys groups by category label, with every category present
func byLabel(groups map[domain.Category][]domain.OrganizedItem) map[string][]domain.OrganizedItem {
	out := make(map[string][]domain.OrganizedItem, len(domain.Categories))
	for _, cat := range domain.Categories {
		out[cat.Label()] = nonNil(groups[cat])
	}
	return out
}

// CompleteRequest is the optional body of POST /organized/{id}/complete
type CompleteRequest struct {
	Completed *bool `json:"completed,omitempty"`
}

func (s *Server) completeItem(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	owner := s.ownerOf(r)
	item, err := s.store.FindItem(r.Context(), owner, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SetCompleted(r.Context(), owner, item.ID, completed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	item.Completed = completed
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) listArchive(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.store.ListArchive(r.Context(), s.ownerOf(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": nonNil(items),
		"limit": limit,
	})
}

func nonNil(items []domain.OrganizedItem) []domain.OrganizedItem {
	if items == nil {
		return []domain.OrganizedItem{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
