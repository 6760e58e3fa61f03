package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"tablero/internal/core"
	"tablero/internal/services"
	"tablero/internal/storage"
)

// historicalParams are the year values that select every configured year.
var historicalParams = []string{"historico", "all", "0"}

// parseSelection reads year, venue and sort from the fairs query string. An
// absent year selects defaultYear; whether the year is configured is checked by
// the fair service.
func parseSelection(q url.Values, defaultYear int) (services.Selection, error) {
	sel := services.Selection{
		Year:  defaultYear,
		Venue: strings.ToLower(sanitizeInput(q.Get("venue"))),
		Sort:  services.ParseSortOrder(q.Get("sort")),
	}

	v := strings.TrimSpace(q.Get("year"))
	if v == "" {
		return sel, nil
	}
	for _, h := range historicalParams {
		if core.FoldKey(v) == core.FoldKey(h) {
			sel.Year = services.HistoricalYear
			return sel, nil
		}
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		return sel, fmt.Errorf("%w: %q", core.ErrInvalidYear, v)
	}
	sel.Year = year
	return sel, nil
}

// selectionQuery encodes a selection back into query parameters.
func selectionQuery(sel services.Selection) url.Values {
	q := url.Values{}
	if sel.Historical() {
		q.Set("year", "historico")
	} else {
		q.Set("year", strconv.Itoa(sel.Year))
	}
	if sel.Venue != "" {
		q.Set("venue", sel.Venue)
	}
	if sel.Sort != "" && sel.Sort != services.SortAscending {
		q.Set("sort", string(sel.Sort))
	}
	return q
}

var errUploadTooLarge = errors.New("upload too large")

// parseImportForm reads a multipart upload: dataset, year, venue and file.
// The body must already be wrapped in http.MaxBytesReader.
func parseImportForm(r *http.Request, maxBytes int64) (storage.ImportRequest, []byte, error) {
	var req storage.ImportRequest
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return req, nil, errUploadTooLarge
		}
		return req, nil, fmt.Errorf("%w: %v", core.ErrInvalidCSV, err)
	}

	dataset, err := core.ParseDataset(r.FormValue("dataset"))
	if err != nil {
		return req, nil, err
	}
	req.Dataset = dataset
	if dataset.Yearly() {
		year, err := strconv.Atoi(strings.TrimSpace(r.FormValue("year")))
		if err != nil {
			return req, nil, fmt.Errorf("%w: %q", core.ErrInvalidYear, r.FormValue("year"))
		}
		req.Year = year
	}
	if dataset.PerVenue() {
		req.Venue = strings.ToLower(sanitizeInput(r.FormValue("venue")))
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, nil, fmt.Errorf("%w: missing file", core.ErrInvalidCSV)
	}
	defer file.Close()
	req.Filename = filepath.Base(sanitizeInput(header.Filename))

	data, err := io.ReadAll(file)
	if err != nil {
		return req, nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return req, nil, fmt.Errorf("%w: empty file", core.ErrInvalidCSV)
	}
	return req, data, nil
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
