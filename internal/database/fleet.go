package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"
)

// SeedResult counts what SeedFleet inserted; existing rows are left alone.
type SeedResult struct {
	Apartments   int
	Integrations int
	Mappings     int
}

// SeedFleet inserts apartments, integrations and listing mappings that are not
// present yet. It is safe to run on every start.
func (db *DB) SeedFleet(ctx context.Context, fleet models.Fleet) (SeedResult, error) {
	var res SeedResult
	byName := make(map[string]int64, len(fleet.Apartments))

	for i := range fleet.Apartments {
		apt := fleet.Apartments[i]
		existing, err := db.GetApartmentByName(ctx, apt.Name)
		switch {
		case err == nil:
			byName[apt.Name] = existing.ID
			continue
		case !errors.Is(err, domain.ErrNotFound):
			return res, err
		}

		if apt.Capacity <= 0 {
			apt.Capacity = 1
		}
		apt.IsActive = true
		if err := db.CreateApartment(ctx, &apt); err != nil {
			return res, err
		}
		byName[apt.Name] = apt.ID
		res.Apartments++
	}

	integrations, err := db.ListIntegrations(ctx)
	if err != nil {
		return res, err
	}

	for _, fi := range fleet.Integrations {
		channel, err := models.ParseChannel(fi.Channel)
		if err != nil {
			return res, fmt.Errorf("integration %q: %w", fi.Label, err)
		}
		label := fi.Label
		if label == "" {
			label = channel.Label()
		}

		var integration *models.Integration
		for i := range integrations {
			if integrations[i].Channel == channel && integrations[i].Label == label {
				integration = &integrations[i]
				break
			}
		}
		if integration == nil {
			integration = &models.Integration{Channel: channel, Label: label, IsActive: fi.Active == nil || *fi.Active}
			if err := db.CreateIntegration(ctx, integration); err != nil {
				return res, err
			}
			integrations = append(integrations, *integration)
			res.Integrations++
		}

		mappings, err := db.ListMappings(ctx, integration.ID)
		if err != nil {
			return res, err
		}
		known := make(map[string]bool, len(mappings))
		for _, m := range mappings {
			known[m.ExternalListingID] = true
		}

		for _, fm := range fi.Mappings {
			if known[fm.ListingID] {
				continue
			}
			aptID, ok := byName[fm.Apartment]
			if !ok {
				apt, err := db.GetApartmentByName(ctx, fm.Apartment)
				if err != nil {
					return res, fmt.Errorf("mapping %s: %w", fm.ListingID, err)
				}
				aptID = apt.ID
			}
			m := &models.ApartmentMapping{
				IntegrationID:     integration.ID,
				ApartmentID:       aptID,
				ExternalListingID: fm.ListingID,
				ExternalName:      fm.ExternalName,
			}
			if err := db.CreateMapping(ctx, m); err != nil {
				return res, err
			}
			known[fm.ListingID] = true
			res.Mappings++
		}
	}

	db.logger.Info().
		Int("apartments", res.Apartments).
		Int("integrations", res.Integrations).
		Int("mappings", res.Mappings).
		Msg("fleet seeded")
	return res, nil
}
