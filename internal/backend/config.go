package backend

import (
	"errors"
	"fmt"

	"cruscotto/internal/config"
)

// FromAppConfig picks the fields of the process configuration that the
// selected backend needs.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	t := Type(app.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (want one of %v)", app.DataBackend, GetBackendTypeStrings())
	}

	cfg := Config{
		Type:            t,
		CacheTTL:        app.CacheTTL,
		CacheMaxEntries: app.CacheMaxEntries,
	}
	switch t {
	case RESTBackend:
		cfg.APIBaseURL, cfg.APITimeout = app.APIBaseURL, app.APITimeout
	case SQLiteBackend:
		cfg.SQLiteDBPath = app.SQLiteDBPath
	case SheetsBackend:
		cfg.GoogleSpreadsheetID = app.GoogleSpreadsheetID
		cfg.GoogleSheetName = app.GoogleSheetName
		cfg.GoogleServiceAccountFile = app.GoogleServiceAccountFile
		cfg.GoogleServiceAccountJSON = app.GoogleServiceAccountJSON
	case MemoryBackend:
		cfg.MemorySeedFile = app.MemorySeedFile
	}
	return cfg, nil
}

type requirement struct {
	missing func(Config) bool
	msg     string
}

var requirements = map[Type][]requirement{
	RESTBackend: {
		{func(c Config) bool { return c.APIBaseURL == "" }, "API base URL is required for rest backend"},
	},
	SQLiteBackend: {
		{func(c Config) bool { return c.SQLiteDBPath == "" }, "SQLite database path is required for sqlite backend"},
	},
	SheetsBackend: {
		{func(c Config) bool { return c.GoogleSpreadsheetID == "" }, "Google Spreadsheet ID is required for sheets backend"},
		{
			func(c Config) bool { return c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" },
			"either GoogleServiceAccountFile or GoogleServiceAccountJSON must be provided for sheets backend",
		},
	},
	// An empty seed file yields an empty memory store.
	MemoryBackend: nil,
}

// Validate reports the first setting the selected backend is missing.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	for _, r := range requirements[c.Type] {
		if r.missing(c) {
			return errors.New(r.msg)
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []Type {
	return []Type{RESTBackend, SQLiteBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns the backend types as strings, in the order
// of GetBackendTypes.
func GetBackendTypeStrings() []string {
	var out []string
	for _, t := range GetBackendTypes() {
		out = append(out, t.String())
	}
	return out
}
