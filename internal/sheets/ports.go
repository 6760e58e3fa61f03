package sheets

import (
	"context"

	"tablero/internal/core"
)

// Ports for the tabular sources the dashboards read.
type (
	// ApplicationReader lists PACHAMBEAR applications.
	ApplicationReader interface {
		ListApplications(ctx context.Context) ([]core.Application, core.LoadReport, error)
	}

	// RegistrationReader lists one-row-per-registration fair records for a year.
	RegistrationReader interface {
		ListRegistrations(ctx context.Context, year int) ([]core.Fact, core.LoadReport, error)
	}

	// MonthlyReader returns the wide monthly-payment export of a venue for a year.
	MonthlyReader interface {
		ReadMonthlySheet(ctx context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error)
	}
)
