package storage

import (
	"path/filepath"
	"testing"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		assert.Equal(t, []string{"json", "memory", "postgres", "sqlite"}, factory.GetSupportedProviders())
	})

	t.Run("ValidateConfig", func(t *testing.T) {
		tests := []struct {
			name      string
			config    models.StorageConfig
			expectErr bool
		}{
			{"valid json config", models.StorageConfig{Type: "json", Path: "/tmp/test.json"}, false},
			{"json config missing path", models.StorageConfig{Type: "json"}, true},
			{"valid memory config", models.StorageConfig{Type: "memory"}, false},
			{"valid sqlite config", models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: "file:test.db"}}, false},
			{"postgres config missing DSN", models.StorageConfig{Type: "postgres"}, true},
			{"unsupported type", models.StorageConfig{Type: "mongodb"}, true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := factory.ValidateConfig(tt.config)
				if tt.expectErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})

	t.Run("CreateMemory", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "memory", MaxRecords: 3})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStorage{}, s)
		assert.Len(t, s.(*MemoryStorage).records, 3)
	})

	t.Run("CreateJSON", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "json", Path: filepath.Join(t.TempDir(), "sweeps.json")})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &JSONStorage{}, s)
	})

	t.Run("CreateSQLite", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "sweeps.db")
		s, err := factory.Create(models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: dsn}})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStorage{}, s)
	})

	t.Run("CreateUnsupported", func(t *testing.T) {
		_, err := factory.Create(models.StorageConfig{Type: "mongodb"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage type")
	})
}
