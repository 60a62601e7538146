package state

import (
	"fmt"

	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/db"
)

// NewStore creates the state store of one target for the configured storage type.
// conn must be non-nil for database storage types.
func NewStore(cfg *config.Config, target string, conn *db.Connection, clk clock.PassiveClock) (Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeFile:
		return NewFileStore(cfg.GetDataDir(), target, clk)
	case config.StorageTypePostgres, config.StorageTypeSQLite:
		if conn == nil {
			return nil, fmt.Errorf("storage type %s requires a database connection", cfg.GetStorageType())
		}
		return NewDBStore(conn, target, clk)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}
