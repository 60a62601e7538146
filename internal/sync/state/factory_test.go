package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/biblio-sync/internal/config"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		storageType config.StorageType
		wantErr     string
	}{
		{name: "file storage", storageType: config.StorageTypeFile},
		{name: "sqlite without connection", storageType: config.StorageTypeSQLite, wantErr: "requires a database connection"},
		{name: "postgres without connection", storageType: config.StorageTypePostgres, wantErr: "requires a database connection"},
		{name: "unknown storage", storageType: "s3", wantErr: "unsupported storage type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{
				Storage: config.StorageConfig{Type: tt.storageType, DataDir: t.TempDir()},
			}
			s, err := NewStore(cfg, "crossref", nil, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "crossref", s.Target())
		})
	}
}
