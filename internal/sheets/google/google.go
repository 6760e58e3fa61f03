package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"tablero/internal/core"
	ports "tablero/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesReader is the slice of the Sheets API the client needs.
type valuesReader interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type apiValues struct {
	svc *gsheet.Service
}

func (a apiValues) Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Client reads wide monthly-payment tabs from a spreadsheet. Each venue and year
// lives in its own tab named "<year> <venue label>".
type Client struct {
	values        valuesReader
	spreadsheetID string
	logger        *slog.Logger
}

// Ensure interface conformance
var _ ports.MonthlyReader = (*Client)(nil)

// Options configures New.
type Options struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	// OAuthClientFile and OAuthTokenFile authenticate as a user instead of a
	// service account; the token comes from cmd/oauth-init.
	OAuthClientFile string
	OAuthTokenFile  string
	Logger          *slog.Logger
}

// New creates a Sheets client authenticated with a service account, or with a
// user token when OAuthTokenFile is set.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{values: apiValues{svc: svc}, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// newSheetsService initializes a read-only Sheets Service.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when neither JSON nor file is configured.
func newSheetsService(ctx context.Context, opts Options, logger *slog.Logger) (*gsheet.Service, error) {
	if strings.TrimSpace(opts.OAuthTokenFile) != "" {
		auth, err := oauthOption(ctx, opts)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "Creating Google Sheets service with OAuth token", "token_file", opts.OAuthTokenFile)
		return gsheet.NewService(ctx, auth)
	}

	serviceAccountJSON := strings.TrimSpace(opts.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(opts.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsReadonlyScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadMonthlySheet reads the tab of a venue and year. A tab that does not exist
// or holds no rows maps to core.ErrNoData.
func (c *Client) ReadMonthlySheet(ctx context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	empty := core.MonthlySheet{Venue: venue, Year: year}
	if c.values == nil {
		return empty, core.LoadReport{}, errors.New("sheets service not initialized")
	}

	tab := TabName(venue, year)
	rng := fmt.Sprintf("'%s'!A:AZ", strings.ReplaceAll(tab, "'", "''"))
	report := core.LoadReport{Source: "sheets:" + tab}

	values, err := c.values.Values(ctx, c.spreadsheetID, rng)
	if err != nil {
		if isRangeNotFound(err) {
			c.logger.DebugContext(ctx, "Monthly tab not found", "tab", tab)
			return empty, report, fmt.Errorf("%s: %w", tab, core.ErrNoData)
		}
		return empty, report, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(values) == 0 {
		return empty, report, fmt.Errorf("%s: %w", tab, core.ErrNoData)
	}

	sheet, parsed, err := ports.ParseMonthlySheet(toMatrix(values), venue, year)
	parsed.Source = report.Source
	if err != nil {
		return sheet, parsed, fmt.Errorf("%s: %w", tab, err)
	}
	return sheet, parsed, nil
}

// TabName is "<year> <venue label>", e.g. "2024 Manchay".
func TabName(venue core.Venue, year int) string {
	return yearPrefixedName(venue.Label, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func isRangeNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to parse range") || strings.Contains(msg, "notfound")
}

// toMatrix stringifies a values matrix. Numbers come back as float64 from the
// API; integral values are rendered without a fractional part.
func toMatrix(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
