package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tablero/internal/config"
	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/services"
	"tablero/internal/sheets"
	"tablero/internal/sheets/csvfile"
	"tablero/internal/storage"
)

// NewRootCommand builds the tableroctl command tree. Reports go to the command's
// output and logs to its error stream.
func NewRootCommand() *cobra.Command {
	var asJSON bool

	root := &cobra.Command{
		Use:   "tableroctl",
		Short: "Operator tools for the municipal dashboards",
		Long: `tableroctl reads the same exports and configuration as the dashboard server.

It prints the dashboard summaries, classifies a wide monthly-payment export
without starting the server, and loads exports into the sqlite backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			LoadEnvFile()
		},
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(
		newSummaryCommand(&asJSON),
		newClassifyCommand(&asJSON),
		newImportCommand(&asJSON),
	)
	return root
}

// commandLogger logs to the command's error stream so reports stay clean.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *applog.Logger {
	return applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    applog.ParseFormat(cfg.LogFormat),
		Output:    cmd.ErrOrStderr(),
		Component: "tableroctl",
	})
}

func newSummaryCommand(asJSON *bool) *cobra.Command {
	var (
		year  string
		venue string
		sort  string
	)
	cmd := &cobra.Command{
		Use:   "summary pachambear|ferias",
		Short: "Print a dashboard summary",
		Long: `Prints the totals and rankings a dashboard shows for the configured backend.

Example:
  tableroctl summary ferias --year historico --sort desc`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"pachambear", "ferias"},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings()
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, settings.Config)
			result, err := InitBackend(cmd.Context(), logger, settings)
			if err != nil {
				return err
			}
			if result.Cleanup != nil {
				defer result.Cleanup()
			}

			switch args[0] {
			case "pachambear":
				report, err := services.NewApplicationService(result.Backend, logger).Report(cmd.Context())
				if err != nil {
					return err
				}
				return printApplications(cmd.OutOrStdout(), report, *asJSON)
			case "ferias":
				sel, err := selectionFlags(year, venue, sort, settings.Config.SelectedYear())
				if err != nil {
					return err
				}
				fairs := services.NewFairService(result.Backend, result.Backend, services.FairOptions{
					Years:        settings.Config.FeriasYears,
					Venues:       settings.Venues,
					FixedPeriods: settings.Config.FixedPeriods(),
					Logger:       logger,
				})
				report, err := fairs.Report(cmd.Context(), sel)
				if err != nil {
					return err
				}
				return printFairs(cmd.OutOrStdout(), report, *asJSON)
			default:
				return fmt.Errorf("%w: %s", core.ErrUnknownDataset, args[0])
			}
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "fair year, or \"historico\" for every year")
	cmd.Flags().StringVar(&venue, "venue", "", "venue slug")
	cmd.Flags().StringVar(&sort, "sort", string(services.SortAscending), "asc, desc or date")
	return cmd
}

// selectionFlags applies the dashboard query rules to the summary flags.
func selectionFlags(year, venue, sort string, defaultYear int) (services.Selection, error) {
	sel := services.Selection{
		Year:  defaultYear,
		Venue: strings.ToLower(strings.TrimSpace(venue)),
		Sort:  services.ParseSortOrder(sort),
	}
	switch y := strings.TrimSpace(year); {
	case y == "":
	case core.FoldKey(y) == "HISTORICO" || core.FoldKey(y) == "ALL":
		sel.Year = services.HistoricalYear
	default:
		n, err := strconv.Atoi(y)
		if err != nil {
			return sel, fmt.Errorf("%w: %q", core.ErrInvalidYear, year)
		}
		sel.Year = n
	}
	return sel, nil
}

func newClassifyCommand(asJSON *bool) *cobra.Command {
	var (
		venue    string
		year     int
		fixed    bool
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "classify FILE",
		Short: "Classify the entities of a wide monthly-payment export",
		Long: `Reads one wide export (.csv or .xlsx) and prints the payment status of every
entity. No backend or server is needed.

Example:
  tableroctl classify data/ferias/2024_ferias_manchay.csv --venue manchay --year 2024`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			venues, err := config.LoadVenues(cfg.VenuesFile)
			if err != nil {
				return err
			}
			v, err := findVenue(venues, venue)
			if err != nil {
				return err
			}
			if encoding == "" {
				encoding = cfg.CSVEncoding
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			rows, err := csvfile.ReadUpload(args[0], data, csvfile.Encoding(encoding))
			if err != nil {
				return err
			}
			sheet, report, err := sheets.ParseMonthlySheet(rows, v, year)
			if err != nil {
				return err
			}
			commandLogger(cmd, cfg).Info("Export read",
				applog.FieldSource, args[0],
				applog.FieldRows, report.Rows,
				applog.FieldSkippedCells, report.SkippedCells)

			payments := services.ClassifyEntities(sheet, fixed || cfg.FixedPeriods())
			return printPayments(cmd.OutOrStdout(), payments, *asJSON)
		},
	}
	cmd.Flags().StringVar(&venue, "venue", "", "venue slug of the export (required)")
	cmd.Flags().IntVar(&year, "year", 0, "year of the export (required)")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "classify against twelve months")
	cmd.Flags().StringVar(&encoding, "encoding", "", "utf-8 or latin1; defaults to CSV_ENCODING")
	_ = cmd.MarkFlagRequired("venue")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func findVenue(venues []core.Venue, slug string) (core.Venue, error) {
	for _, v := range venues {
		if strings.EqualFold(v.Slug, strings.TrimSpace(slug)) {
			return v, nil
		}
	}
	return core.Venue{}, fmt.Errorf("%w: %s", core.ErrUnknownVenue, slug)
}

func newImportCommand(asJSON *bool) *cobra.Command {
	var (
		dataset string
		year    int
		venue   string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load an export into the sqlite backend",
		Long: `Records FILE as the newest version of its source, exactly like an upload
through the dashboard. Requires DATA_BACKEND=sqlite.

Example:
  tableroctl import 2024_ferias_macro.csv --dataset ferias --year 2024`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings()
			if err != nil {
				return err
			}
			logger := commandLogger(cmd, settings.Config)
			result, err := InitBackend(cmd.Context(), logger, settings)
			if err != nil {
				return err
			}
			if result.Cleanup != nil {
				defer result.Cleanup()
			}
			if result.Imports == nil {
				return fmt.Errorf("imports need DATA_BACKEND=sqlite, got %s", settings.Config.DataBackend)
			}

			ds, err := core.ParseDataset(dataset)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			req := storage.ImportRequest{Dataset: ds, Filename: filepath.Base(args[0])}
			if ds.Yearly() {
				req.Year = year
			}
			if ds.PerVenue() {
				req.Venue = strings.ToLower(strings.TrimSpace(venue))
			}
			if err := req.Validate(); err != nil {
				return err
			}

			imp, err := result.Imports.Submit(cmd.Context(), req, data)
			if err != nil {
				return err
			}
			if err := printImport(cmd.OutOrStdout(), imp, *asJSON); err != nil {
				return err
			}
			if imp.Status == storage.StatusFailed {
				return fmt.Errorf("import %s failed: %s", imp.ID, imp.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "pachambear, ferias or mensual (required)")
	cmd.Flags().IntVar(&year, "year", 0, "year of the export")
	cmd.Flags().StringVar(&venue, "venue", "", "venue slug, for mensual exports")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRows(w io.Writer, title string, rows []core.AggregateRow, label func(string) string) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, r := range rows {
		key := r.Key
		if label != nil {
			key = label(key)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", key, r.Count, r.Amount.StringFixed(2), r.Date)
	}
	tw.Flush()
}

func printApplications(w io.Writer, r services.ApplicationReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, struct {
			Total        int                 `json:"total"`
			Categories   int                 `json:"categories"`
			From         string              `json:"from"`
			To           string              `json:"to"`
			ByCategory   []core.AggregateRow `json:"by_category"`
			MonthlyTrend []core.AggregateRow `json:"monthly_trend"`
			Load         core.LoadReport     `json:"load"`
		}{r.Total, r.Categories, r.From.String(), r.To.String(), r.ByCategory, r.MonthlyTrend, r.Load})
	}
	fmt.Fprintf(w, "Solicitudes: %d\nCategorías: %d\nPeriodo: %s - %s\n",
		r.Total, r.Categories, core.FormatSpanishDate(r.From), core.FormatSpanishDate(r.To))
	printRows(w, "Por categoría", r.ByCategory, nil)
	printRows(w, "Por certificado", r.ByCertificate, nil)
	printRows(w, "Tendencia mensual", r.MonthlyTrend, services.MonthLabel)
	return nil
}

func printFairs(w io.Writer, r services.FairReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, struct {
			Years              []int                `json:"years"`
			Fairs              int                  `json:"fairs"`
			Participants       int                  `json:"participants"`
			Categories         int                  `json:"categories"`
			Revenue            string               `json:"revenue"`
			ParticipantsByFair []core.AggregateRow  `json:"participants_by_fair"`
			TopCategories      []core.AggregateRow  `json:"top_categories"`
			ParticipantsByYear []core.AggregateRow  `json:"participants_by_year,omitempty"`
			StatusDistribution []core.AggregateRow  `json:"status_distribution,omitempty"`
			Payments           []core.EntityPayment `json:"payments,omitempty"`
		}{r.Years, r.Fairs, r.Participants, r.Categories, r.Revenue.StringFixed(2),
			r.ParticipantsByFair, r.TopCategories, r.ParticipantsByYear, r.StatusDistribution, r.Payments})
	}
	fmt.Fprintf(w, "Años: %v\nFerias: %d\nParticipantes: %d\nCategorías: %d\nRecaudación: S/ %s\n",
		r.Years, r.Fairs, r.Participants, r.Categories, r.Revenue.StringFixed(2))
	printRows(w, "Participantes por feria", r.ParticipantsByFair, nil)
	printRows(w, "Recaudación por feria", r.RevenueByFair, nil)
	printRows(w, "Principales categorías", r.TopCategories, nil)
	printRows(w, "Tendencia mensual", r.MonthlyTrend, services.MonthLabel)
	printRows(w, "Participantes por año", r.ParticipantsByYear, nil)
	printRows(w, "Estado de pagos", r.StatusDistribution, nil)
	return nil
}

func printPayments(w io.Writer, payments []core.EntityPayment, asJSON bool) error {
	if asJSON {
		return writeJSON(w, payments)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTIDAD\tGIRO\tPAGADOS\tTOTAL\tESTADO")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", p.Entity, p.Category, p.Paid, p.Periods, p.Total.StringFixed(2), p.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printRows(w, "Estado de pagos", services.StatusDistribution(payments), nil)
	return nil
}

func printImport(w io.Writer, imp storage.Import, asJSON bool) error {
	if asJSON {
		return writeJSON(w, imp)
	}
	_, err := fmt.Fprintf(w, "import %s\ndataset: %s\nstatus: %s\nrows: %d\n", imp.ID, imp.Dataset, imp.Status, imp.Rows)
	return err
}
