package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("MORADA_API_KEY", "secret-key")

	yamlContent := `
app:
  name: "morada"
  environment: "test"
database:
  path: "test.db"
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: "${MORADA_API_KEY}"
        extra: "extra"
        name: "backoffice"
sync:
  lock_ttl: 30s
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "morada", cfg.App.Name)
	assert.Equal(t, "test.db", cfg.Database.Path)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "secret-key", cfg.API.Auth.APIKeys[0].Key)
	assert.Equal(t, 30*time.Second, cfg.Sync.LockTTL)

	// defaults
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, models.MaxSyncBatchSize, cfg.Sync.MaxBatchSize)
	assert.Equal(t, 5, cfg.Sync.Worker.MaxRetries)
	assert.Equal(t, "Reservas", cfg.Google.BookingsSheetName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Database: DatabaseConfig{Path: "path"}},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "auth without keys",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				API:      APIConfig{Enabled: true, Auth: APIAuthConfig{Enabled: true}},
			},
			wantErr: true,
		},
		{
			name: "duplicate keys",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				API: APIConfig{Enabled: true, Auth: APIAuthConfig{Enabled: true, APIKeys: []APIClientKey{
					{Key: "a", Name: "one"}, {Key: "a", Name: "two"},
				}}},
			},
			wantErr: true,
		},
		{
			name: "backup without storage",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Backup:   BackupConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFleet(t *testing.T) {
	fleet := models.Fleet{
		Apartments: []models.Apartment{{Name: "Apto 101"}, {Name: "Apto 102"}},
		Integrations: []models.FleetIntegration{{
			Channel: "AIRBNB",
			Label:   "Airbnb",
			Mappings: []models.FleetMapping{
				{Apartment: "Apto 101", ListingID: "L-1"},
				{Apartment: "Apto 102", ListingID: "L-2"},
			},
		}},
	}
	require.NoError(t, ValidateFleet(fleet))

	fleet.Integrations[0].Mappings[1].ListingID = "L-1"
	assert.Error(t, ValidateFleet(fleet))

	fleet.Integrations[0].Mappings[1] = models.FleetMapping{Apartment: "Apto 999", ListingID: "L-9"}
	assert.Error(t, ValidateFleet(fleet))

	fleet.Integrations[0].Mappings = nil
	fleet.Integrations[0].Channel = "vrbo"
	assert.Error(t, ValidateFleet(fleet))

	fleet.Integrations = nil
	fleet.Apartments = append(fleet.Apartments, models.Apartment{Name: "Apto 101"})
	assert.Error(t, ValidateFleet(fleet))
}
