// Package core holds the domain of the municipal dashboards: the Spanish month
// lexicon, amounts and dates parsed from the exports, the records loaded from
// them, the yearly payment status classifier and the sentinel errors shared by
// every layer.
package core
