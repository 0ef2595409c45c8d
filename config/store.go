package config

import "strings"

// StoreBackend identifies which persistence backend the server runs on.
type StoreBackend string

const (
	// StoreBackendSQLite persists state in a SQLite database file.
	StoreBackendSQLite StoreBackend = "sqlite"
	// StoreBackendSnapshot keeps state in memory and snapshots it to a JSON file.
	StoreBackendSnapshot StoreBackend = "snapshot"
)

// StoreConfig contains state store configuration.
//
// When DatabasePath is set the server uses SQLite as its system of record.
// Otherwise state lives in memory and is written asynchronously to the
// snapshot file after every mutation.
type StoreConfig struct {
	// DatabasePath is the SQLite database file path. Empty selects the
	// in-memory store with JSON snapshots.
	DatabasePath string `env:"DATABASE_PATH" envDefault:""`

	// StateFile is the JSON snapshot path used by the in-memory store.
	StateFile string `env:"STATE_FILE" envDefault:"dispatch_server_state.json"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	s.DatabasePath = strings.TrimSpace(s.DatabasePath)
	s.StateFile = strings.TrimSpace(s.StateFile)
	if s.StateFile == "" {
		s.StateFile = "dispatch_server_state.json"
	}
}

// Backend returns the persistence backend selected by this configuration.
func (s *StoreConfig) Backend() StoreBackend {
	if s.DatabasePath != "" {
		return StoreBackendSQLite
	}
	return StoreBackendSnapshot
}
