package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hazyhaar/factnorm/pkg/kit"
	"github.com/hazyhaar/factnorm/pkg/normalize"
)

// maxBodyBytes bounds every POST body.
const maxBodyBytes = 1 << 20

// NewRouter returns an http.Handler with all factnorm API routes.
func NewRouter(svc *Service) http.Handler {
	mux := http.NewServeMux()
	h := &handler{svc: svc}

	mux.HandleFunc("POST /v1/normalize/one", h.handleNormalizeOne)
	mux.HandleFunc("POST /v1/normalize/many", h.handleNormalizeMany)
	mux.HandleFunc("POST /v1/realign", h.handleRealign)
	mux.HandleFunc("GET /v1/languages", h.handleLanguages)
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	mux.Handle("GET /metrics", svc.metrics.Handler())

	return requestID(cors(mux))
}

type handler struct {
	svc *Service
}

// --- normalize one ---

type httpNormalizeRequest struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
	Conflict string `json:"conflict,omitempty"`
}

func (h *handler) handleNormalizeOne(w http.ResponseWriter, r *http.Request) {
	var req httpNormalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	conflict, err := normalize.ParseConflict(req.Conflict)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.svc.normalizeOne(r.Context(), &normalizeOneReq{
		Language: req.Language,
		Text:     req.Text,
		Conflict: conflict,
	})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- normalize many ---

func (h *handler) handleNormalizeMany(w http.ResponseWriter, r *http.Request) {
	var req httpNormalizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.normalizeMany(r.Context(), &normalizeManyReq{
		Language: req.Language,
		Text:     req.Text,
	})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- realign ---

type httpRealignRequest struct {
	Language   string            `json:"language,omitempty"`
	SentenceID string            `json:"sentence_id,omitempty"`
	Tokens     []normalize.Token `json:"tokens"`
}

func (h *handler) handleRealign(w http.ResponseWriter, r *http.Request) {
	var req httpRealignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.realign(r.Context(), &realignReq{
		Language:   req.Language,
		SentenceID: req.SentenceID,
		Tokens:     req.Tokens,
	})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- languages ---

func (h *handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.listLanguages(r.Context(), nil)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status    string   `json:"status"`
	Languages []string `json:"languages"`
	Rules     int      `json:"rules"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	langs := h.svc.reg.Languages()
	status, code := "ok", http.StatusOK
	if len(langs) == 0 {
		status, code = "no rules loaded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Languages: langs,
		Rules:     h.svc.reg.RuleCount(),
	})
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeEndpointError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownLanguage):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, normalize.ErrTransform):
		code = http.StatusUnprocessableEntity
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestID reuses the caller's X-Request-ID or assigns a new one, stores
// it in the request context and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
