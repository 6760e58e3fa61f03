package core

import (
	"fmt"
	"strings"
)

// Dataset names one kind of source export.
type Dataset string

const (
	DatasetApplications  Dataset = "pachambear"
	DatasetRegistrations Dataset = "ferias"
	DatasetMonthly       Dataset = "mensual"
)

// Datasets lists every importable dataset.
var Datasets = []Dataset{DatasetApplications, DatasetRegistrations, DatasetMonthly}

// ParseDataset resolves a dataset name, case-insensitively.
func ParseDataset(s string) (Dataset, error) {
	d := Dataset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Datasets {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
}

// Yearly reports whether the dataset is published once per year.
func (d Dataset) Yearly() bool {
	return d == DatasetRegistrations || d == DatasetMonthly
}

// PerVenue reports whether the dataset is published once per venue.
func (d Dataset) PerVenue() bool {
	return d == DatasetMonthly
}
