package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"

	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/storage"
)

const importHistoryLimit = 25

type importsPage struct {
	pageMeta
	Years   []int
	Venues  []core.Venue
	Imports []storage.Import
	Current *storage.Import
}

func (s *Server) newImportsPage(r *http.Request) importsPage {
	page := importsPage{
		pageMeta: s.meta("Cargas", "imports"),
		Years:    s.fairs.Years(),
		Venues:   s.fairs.Venues(),
	}
	imports, err := s.imports.Recent(r.Context(), importHistoryLimit)
	if err != nil {
		page.Banner = bannerText(err)
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Import history failed",
			applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpList)
	}
	page.Imports = imports
	return page
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	page := s.newImportsPage(r)
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		imp, err := s.imports.Get(r.Context(), id)
		if err != nil {
			s.render(w, r, "imports.html", s.applyError(r, &page.pageMeta, err), page)
			return
		}
		page.Current = &imp
	}
	s.render(w, r, "imports.html", http.StatusOK, page)
}

// handleUpload accepts a multipart export. Browsers are redirected to the
// history page; JSON clients get the import record, 202 while it is queued.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadMaxBytes)

	req, data, err := parseImportForm(r, s.uploadMaxBytes)
	if err == nil {
		var imp storage.Import
		imp, err = s.imports.Submit(r.Context(), req, data)
		if err == nil {
			applog.FromContext(r.Context()).InfoContext(r.Context(), "Upload accepted",
				applog.FieldImportID, imp.ID,
				applog.FieldDataset, string(imp.Dataset),
				"status", string(imp.Status))
			s.writeUploaded(w, r, imp)
			return
		}
	}

	if wantsJSON(r) {
		var meta pageMeta
		writeJSON(w, s.applyError(r, &meta, err), errorBody{Error: err.Error()})
		return
	}
	page := s.newImportsPage(r)
	s.render(w, r, "imports.html", s.applyError(r, &page.pageMeta, err), page)
}

func (s *Server) writeUploaded(w http.ResponseWriter, r *http.Request, imp storage.Import) {
	if wantsJSON(r) {
		status := http.StatusCreated
		if imp.Status == storage.StatusPending {
			status = http.StatusAccepted
		}
		w.Header().Set("Location", "/api/imports/"+url.PathEscape(imp.ID))
		writeJSON(w, status, newImportView(imp))
		return
	}
	http.Redirect(w, r, "/imports?id="+url.QueryEscape(imp.ID), http.StatusSeeOther)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	imp, err := s.imports.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		var meta pageMeta
		writeJSON(w, s.applyError(r, &meta, err), errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newImportView(imp))
}
