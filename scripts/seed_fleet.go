package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/config"
	"github.com/thiagoooop/morada-de-praia/internal/database"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		fleetPath = flag.String("fleet", "configs/fleet.yaml", "path to fleet.yaml")
		dbPath    = flag.String("db", "./data/morada.db", "path to sqlite db")
		update    = flag.Bool("update", false, "overwrite details of apartments that already exist")
	)
	flag.Parse()

	data, err := os.ReadFile(*fleetPath)
	if err != nil {
		return fmt.Errorf("read fleet: %w", err)
	}
	var fleet models.Fleet
	if err = yaml.Unmarshal(data, &fleet); err != nil {
		return fmt.Errorf("parse fleet: %w", err)
	}
	if len(fleet.Apartments) == 0 {
		return fmt.Errorf("no apartments in yaml")
	}
	if err = config.ValidateFleet(fleet); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	updated := 0
	if *update {
		for _, apt := range fleet.Apartments {
			existing, err := db.GetApartmentByName(ctx, apt.Name)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", apt.Name, err)
			}
			existing.Description = apt.Description
			existing.Address = apt.Address
			if apt.Capacity > 0 {
				existing.Capacity = apt.Capacity
			}
			if err = db.UpdateApartment(ctx, existing); err != nil {
				return fmt.Errorf("update %s: %w", apt.Name, err)
			}
			updated++
		}
	}

	res, err := db.SeedFleet(ctx, fleet)
	if err != nil {
		return fmt.Errorf("seed fleet: %w", err)
	}

	fmt.Printf("done: apartments=%d updated=%d integrations=%d mappings=%d\n",
		res.Apartments, updated, res.Integrations, res.Mappings)
	return nil
}
