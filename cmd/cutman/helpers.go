package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bantamhq/cutman/internal/config"
	"github.com/bantamhq/cutman/internal/store"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// initStore opens the database under dataDir, creating the directory and
// applying schema migrations on first use, per spec §6's "server init
// creates the data directory and database file if absent".
func initStore(dataDir string) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.NewSQLiteStore(dataDir + "/cutman.db")
}

const adminTokenFileName = "/.admin_token"
