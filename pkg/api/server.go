package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/meshland/catalyst/pkg/apierr"
	"github.com/meshland/catalyst/pkg/authchain"
	"github.com/meshland/catalyst/pkg/deploy"
	"github.com/meshland/catalyst/pkg/entity"
	"github.com/meshland/catalyst/pkg/history"
	"github.com/meshland/catalyst/pkg/log"
	"github.com/meshland/catalyst/pkg/metrics"
)

// maxUploadMemory bounds how much of a multipart POST /entities body is
// buffered in memory before spilling to temp files, independent of the
// per-type MAX_UPLOAD_SIZE_PER_TYPE cap pkg/validation enforces.
const maxUploadMemory = 32 << 20

// Server is the HTTP surface over a deploy.Service.
type Server struct {
	service deploy.Service
	router  chi.Router
}

// New builds a Server routing spec.md §6's endpoints to service.
func New(service deploy.Service) *Server {
	s := &Server{service: service}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.instrument)

	r.Get("/entities/{type}", s.handleGetEntities)
	r.Post("/entities", s.handleDeploy)
	r.Get("/contents/{hashId}", s.handleGetContent)
	r.Post("/available-content", s.handleAvailableContent)
	r.Get("/pointers/{type}", s.handleGetActivePointers)
	r.Get("/audit/{type}/{entityId}", s.handleGetAudit)
	r.Get("/history", s.handleGetHistory)
	r.Get("/status", s.handleStatus)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// instrument records request counts and durations per route, the way
// pkg/metrics's Timer is meant to be used at a call site.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rw.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAPIErr renders err using apierr's classification, falling back to
// 500 for anything that isn't an *apierr.Error.
func writeAPIErr(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		log.Logger.Warn().Err(apiErr).Int("status", apiErr.Code.HTTPStatus()).Msg("api: request failed")
		writeJSON(w, apiErr.Code.HTTPStatus(), map[string]interface{}{
			"error":   apiErr.Message,
			"details": apiErr.Details,
		})
		return
	}
	log.Logger.Error().Err(err).Msg("api: unclassified request error")
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}

func (s *Server) handleGetEntities(w http.ResponseWriter, r *http.Request) {
	typ := entity.Type(chi.URLParam(r, "type"))
	query := r.URL.Query()
	entities, err := s.service.GetEntities(r.Context(), typ, query["pointer"], query["id"])
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

// handleDeploy implements POST /entities: a multipart body containing an
// entity.json part, any referenced content parts (named by content hash),
// and form fields entityId plus either authChain (a JSON-encoded
// []entity.AuthChainLink) or the simple ethAddress/signature pair for a
// two-link SIGNER -> ECDSA_SIGNED_ENTITY chain.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeAPIErr(w, apierr.NewValidation([]string{"could not parse multipart form: " + err.Error()}))
		return
	}

	entityID := r.FormValue("entityId")
	files := make(map[string][]byte, len(r.MultipartForm.File))
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				writeAPIErr(w, apierr.NewValidation([]string{"could not open uploaded file " + field + ": " + err.Error()}))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeAPIErr(w, apierr.NewValidation([]string{"could not read uploaded file " + field + ": " + err.Error()}))
				return
			}
			files[field] = data
		}
	}

	chain, err := parseAuthChain(r, entityID)
	if err != nil {
		writeAPIErr(w, apierr.NewValidation([]string{err.Error()}))
		return
	}

	ts, err := s.service.Deploy(r.Context(), deploy.DeployRequest{
		Files:          files,
		EntityID:       entityID,
		AuthChain:      chain,
		CheckFreshness: true,
	})
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"creationTimestamp": ts})
}

func parseAuthChain(r *http.Request, entityID string) ([]entity.AuthChainLink, error) {
	if raw := r.FormValue("authChain"); raw != "" {
		var chain []entity.AuthChainLink
		if err := json.Unmarshal([]byte(raw), &chain); err != nil {
			return nil, err
		}
		return chain, nil
	}
	return []entity.AuthChainLink{
		{Type: authchain.LinkTypeSigner, Payload: r.FormValue("ethAddress")},
		{Type: authchain.LinkTypeEntity, Payload: entityID, Signature: r.FormValue("signature")},
	}, nil
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hashId")
	data, err := s.service.GetContent(r.Context(), hash)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// handleAvailableContent implements POST /available-content: given a JSON
// array of hashes, reports which ones this server can currently serve.
// Availability is checked through GetContent rather than a direct storage
// lookup so a blacklist.Overlay's subtractive view is respected here too.
func (s *Server) handleAvailableContent(w http.ResponseWriter, r *http.Request) {
	var hashes []string
	if err := json.NewDecoder(r.Body).Decode(&hashes); err != nil {
		writeAPIErr(w, apierr.NewValidation([]string{"could not parse request body: " + err.Error()}))
		return
	}

	type availability struct {
		CID       string `json:"cid"`
		Available bool   `json:"available"`
	}
	out := make([]availability, len(hashes))
	for i, hash := range hashes {
		_, err := s.service.GetContent(r.Context(), hash)
		out[i] = availability{CID: hash, Available: err == nil}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetActivePointers(w http.ResponseWriter, r *http.Request) {
	typ := entity.Type(chi.URLParam(r, "type"))
	pointers, err := s.service.GetActivePointers(r.Context(), typ)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointers)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	typ := entity.Type(chi.URLParam(r, "type"))
	id := chi.URLParam(r, "entityId")
	audit, err := s.service.GetAudit(r.Context(), typ, id)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

type historyResponse struct {
	Events            []history.Event `json:"events"`
	LastImmutableTime int64           `json:"lastImmutableTime"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseOptionalInt64(query.Get("from"))
	if err != nil {
		writeAPIErr(w, apierr.NewValidation([]string{"invalid from: " + err.Error()}))
		return
	}
	to, err := parseOptionalInt64(query.Get("to"))
	if err != nil {
		writeAPIErr(w, apierr.NewValidation([]string{"invalid to: " + err.Error()}))
		return
	}
	var serverName *string
	if name := query.Get("serverName"); name != "" {
		serverName = &name
	}

	events, err := s.service.GetHistory(r.Context(), from, to, serverName)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Events:            events,
		LastImmutableTime: s.service.Status(r.Context()).LastImmutableTime,
	})
}

func parseOptionalInt64(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

// ListenAndServe starts the HTTP server on addr, with the same timeouts
// the teacher's health server uses.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}
