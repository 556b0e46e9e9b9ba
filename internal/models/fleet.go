package models

// Fleet is the seed description of apartments and channel integrations.
type Fleet struct {
	Apartments   []Apartment        `yaml:"apartments"`
	Integrations []FleetIntegration `yaml:"integrations"`
}

type FleetIntegration struct {
	Channel  string         `yaml:"channel"`
	Label    string         `yaml:"label"`
	Active   *bool          `yaml:"active"`
	Mappings []FleetMapping `yaml:"mappings"`
}

// FleetMapping refers to the apartment by name so the file stays readable.
type FleetMapping struct {
	Apartment    string `yaml:"apartment"`
	ListingID    string `yaml:"listing_id"`
	ExternalName string `yaml:"external_name"`
}
