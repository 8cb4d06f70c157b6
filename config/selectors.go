package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Selectors is the single place where assumptions about the portal's markup
// live. When the portal's layout drifts, ship a new YAML file instead of a
// code change.
type Selectors struct {
	Nav     NavSelectors    `yaml:"nav"`
	Results ResultSelectors `yaml:"results"`
}

// NavSelectors drive form submission and pagination.
type NavSelectors struct {
	CityInput        string `yaml:"city_input"`
	StartDateInput   string `yaml:"start_date_input"`
	EndDateInput     string `yaml:"end_date_input"`
	SearchButton     string `yaml:"search_button"`
	ResultsContainer string `yaml:"results_container"`
	NoResults        string `yaml:"no_results"`
	NextButton       string `yaml:"next_button"`
}

// ResultSelectors locate the row structure inside a rendered results page.
type ResultSelectors struct {
	Row          string `yaml:"row"`
	Address      string `yaml:"address"`
	DealDate     string `yaml:"deal_date"`
	Price        string `yaml:"price"`
	PropertyType string `yaml:"property_type"`
	RoomCount    string `yaml:"room_count"`
	Area         string `yaml:"area"`
}

// DefaultSelectors returns the selector table matching the portal's current
// layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Nav: NavSelectors{
			CityInput:        `input[name="city"], input#SearchString`,
			StartDateInput:   `input[name="fromDate"]`,
			EndDateInput:     `input[name="toDate"]`,
			SearchButton:     `button[type="submit"], button.search-button`,
			ResultsContainer: `div.search-results, table.deals-table`,
			NoResults:        `div.no-results, div.empty-state`,
			NextButton:       `a.next-page, button[aria-label="next"]`,
		},
		Results: ResultSelectors{
			Row:          `table.deals-table tbody tr, div.search-results div.deal-row`,
			Address:      `td.address, div.address`,
			DealDate:     `td.deal-date, div.deal-date`,
			Price:        `td.price, div.price`,
			PropertyType: `td.property-type, div.property-type`,
			RoomCount:    `td.rooms, div.rooms`,
			Area:         `td.area, div.area`,
		},
	}
}

// LoadSelectors reads a YAML override file. An empty path means defaults.
// Fields absent from the file keep their default values.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("read selectors file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &sel); err != nil {
		return sel, fmt.Errorf("parse selectors file %s: %w", path, err)
	}
	return sel, nil
}
