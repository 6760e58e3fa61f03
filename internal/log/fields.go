package log

import "tablero/internal/core"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldReferer      = "referer"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldDataset      = "dataset"
	FieldYear         = "year"
	FieldVenue        = "venue"
	FieldSource       = "source"
	FieldRows         = "rows"
	FieldSkippedCells = "skipped_cells"
	FieldNullDates    = "null_dates"
	FieldDefaulted    = "defaulted"
	FieldImportID     = "import_id"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentReports  = "reports"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentSecurity = "security"
	ComponentBackend  = "backend"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpImport   = "import"
	OpList     = "list"
	OpRender   = "render"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSelection adds the dataset coordinates of a load. Zero year and empty venue are omitted.
func (f LogFields) WithSelection(dataset string, year int, venue string) LogFields {
	f[FieldDataset] = dataset
	if year > 0 {
		f[FieldYear] = year
	}
	if venue != "" {
		f[FieldVenue] = venue
	}
	return f
}

// WithLoadReport adds the per-row anomaly counters of a load.
func (f LogFields) WithLoadReport(r core.LoadReport) LogFields {
	if r.Source != "" {
		f[FieldSource] = r.Source
	}
	f[FieldRows] = r.Rows
	f[FieldSkippedCells] = r.SkippedCells
	f[FieldNullDates] = r.NullDates
	f[FieldDefaulted] = r.Defaulted
	return f
}

// WithImportID adds the import ID field
func (f LogFields) WithImportID(id string) LogFields {
	f[FieldImportID] = id
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	if referer != "" {
		f[FieldReferer] = referer
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
