package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tablero/internal/core"
)

// venueFile is the on-disk shape of VENUES_FILE:
//
//	venues:
//	  - slug: manchay
//	    label: Plaza Cívica
//	    aliases: [Manchay]
//	    monthly: true
type venueFile struct {
	Venues []struct {
		Slug    string   `yaml:"slug"`
		Label   string   `yaml:"label"`
		Aliases []string `yaml:"aliases"`
		Monthly bool     `yaml:"monthly"`
	} `yaml:"venues"`
}

// DefaultVenues is used when no VENUES_FILE is configured.
func DefaultVenues() []core.Venue {
	return []core.Venue{
		{Slug: "manchay", Label: "Plaza Cívica", Aliases: []string{"Manchay"}, Monthly: true},
	}
}

// LoadVenues reads the venue catalog. An empty path yields DefaultVenues.
func LoadVenues(path string) ([]core.Venue, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultVenues(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues file: %w", err)
	}
	return ParseVenues(data)
}

// ParseVenues decodes a YAML venue catalog. Slugs must be unique.
func ParseVenues(data []byte) ([]core.Venue, error) {
	var file venueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse venues file: %w", err)
	}
	if len(file.Venues) == 0 {
		return nil, fmt.Errorf("venues file lists no venues")
	}

	seen := make(map[string]struct{}, len(file.Venues))
	out := make([]core.Venue, 0, len(file.Venues))
	for i, v := range file.Venues {
		venue := core.Venue{
			Slug:    strings.ToLower(strings.TrimSpace(v.Slug)),
			Label:   strings.TrimSpace(v.Label),
			Aliases: v.Aliases,
			Monthly: v.Monthly,
		}
		if err := venue.Validate(); err != nil {
			return nil, fmt.Errorf("venue %d: %w", i+1, err)
		}
		if _, dup := seen[venue.Slug]; dup {
			return nil, fmt.Errorf("venue %d: duplicate slug %q", i+1, venue.Slug)
		}
		seen[venue.Slug] = struct{}{}
		out = append(out, venue)
	}
	return out, nil
}
