package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"factorygrid.ai/internal/persistence/indexdb"
)

// openIndex returns nil when indexing is disabled by flag or by
// FACTORY_INDEX_BACKEND=none.
func openIndex(dataDir string, disableDB bool) (*indexdb.SQLiteStore, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FACTORY_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		path := strings.TrimSpace(os.Getenv("FACTORY_INDEX_PATH"))
		if path == "" {
			path = filepath.Join(dataDir, "index", "factory.sqlite")
		}
		return indexdb.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported FACTORY_INDEX_BACKEND: %s", backend)
	}
}
