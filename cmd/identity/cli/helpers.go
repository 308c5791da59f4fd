package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/curadesk/identity/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// IDENTITY_DATA_DIR env var, or ~/.curadesk as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("IDENTITY_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".curadesk")
}

// storeConfig assembles the store configuration from viper. The
// encryption passphrase comes from store.key (IDENTITY_STORE_KEY); when
// absent and stdin is a terminal, the operator is prompted so the key
// never has to land in shell history.
func storeConfig() (store.Config, error) {
	dialect := store.Dialect(viper.GetString("store.dialect"))
	if dialect == "" {
		dialect = store.DialectSQLite
	}

	dsn := viper.GetString("store.dsn")
	if dsn == "" && dialect == store.DialectSQLite {
		dsn = filepath.Join(resolveDataDir(), "identity.db")
	}

	passphrase := viper.GetString("store.key")
	if passphrase == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return store.Config{}, fmt.Errorf("store encryption key not set (store.key / IDENTITY_STORE_KEY)")
		}
		fmt.Fprint(os.Stderr, "Store encryption key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return store.Config{}, fmt.Errorf("read store key: %w", err)
		}
		passphrase = string(raw)
	}

	return store.Config{Dialect: dialect, DSN: dsn, Passphrase: passphrase}, nil
}

// openStore opens the credential store using the resolved configuration.
func openStore() (*store.Store, error) {
	cfg, err := storeConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg)
}
