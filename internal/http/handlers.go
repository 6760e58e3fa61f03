package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/storage"
)

// pageMeta is the part of every page model the shared partials read.
type pageMeta struct {
	Title          string
	Active         string
	ImportsEnabled bool
	Charts         bool
	Banner         string
	Empty          bool
}

func (s *Server) meta(title, active string) pageMeta {
	return pageMeta{Title: title, Active: active, ImportsEnabled: s.imports != nil}
}

// errorStatus maps a load error to the status of the page or summary.
// core.ErrNoData is not an error for the caller: it renders the empty state.
func errorStatus(err error) int {
	switch {
	case err == nil, errors.Is(err, core.ErrNoData):
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrUnknownVenue),
		errors.Is(err, core.ErrUnknownDataset),
		errors.Is(err, core.ErrInvalidCSV),
		errors.Is(err, core.ErrMissingColumn):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// bannerText is the visible message for a failed load.
func bannerText(err error) string {
	switch errorStatus(err) {
	case http.StatusBadRequest:
		return "Selección no válida: " + err.Error()
	case http.StatusRequestEntityTooLarge:
		return "El archivo supera el tamaño máximo permitido."
	default:
		return "Error al cargar datos: " + err.Error()
	}
}

// applyError records err on the page and returns the response status.
func (s *Server) applyError(r *http.Request, meta *pageMeta, err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, core.ErrNoData) {
		meta.Empty = true
		meta.Charts = false
		return http.StatusOK
	}
	status := errorStatus(err)
	meta.Banner = bannerText(err)
	meta.Charts = false
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard load failed",
			applog.FieldError, err.Error(),
			applog.FieldPath, r.URL.Path)
	}
	return status
}

// render executes a page template into a buffer so a template failure never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, status int, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, "Error al generar la página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		pageMeta
		Years []int
	}{
		pageMeta: s.meta("Inicio", "home"),
		Years:    s.fairs.Years(),
	}
	s.render(w, r, "index.html", http.StatusOK, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"traffic": map[string]any{
			"requests":       s.tracer.GetMetrics().TotalRequests,
			"rate_limited":   s.limiter.Hits(),
			"active_clients": s.limiter.ActiveClients(),
			"probes":         s.detector.Probes(),
		},
	})
}

// handleReady checks the data backend; the server itself is ready once built.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"templates": "ok"}
	status, code := "ready", http.StatusOK
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["backend"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}
	checks["rate_limiter"] = "ok"

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	meta := s.meta("No encontrado", "")
	meta.Banner = "La página solicitada no existe."
	s.render(w, r, "index.html", http.StatusNotFound, struct {
		pageMeta
		Years []int
	}{pageMeta: meta})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldPath, r.URL.Path)
	if wantsJSON(r) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		return
	}
	http.Error(w, "Demasiadas solicitudes. Intente nuevamente en un minuto.", http.StatusTooManyRequests)
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request, v any) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panic",
		"panic", v,
		applog.FieldPath, r.URL.Path)
	http.Error(w, "Error interno", http.StatusInternalServerError)
}
