package chainstore

import (
	"github.com/oarkflow/squealx"
)

// Config selects and parameterizes the host cell store an engine runs
// against.
type Config struct {
	Storage  string         `json:"storage"`
	Path     string         `json:"path"`
	Compress bool           `json:"compress"`
	Database squealx.Config `json:"database"`
}

// MergeConfigs merges multiple Config structs into one, later values
// winning.
func MergeConfigs(configs ...*Config) *Config {
	merged := &Config{}
	for _, cfg := range configs {
		if cfg.Storage != "" {
			merged.Storage = cfg.Storage
		}
		if cfg.Path != "" {
			merged.Path = cfg.Path
		}
		if cfg.Compress {
			merged.Compress = cfg.Compress
		}
		if cfg.Database.Driver != "" {
			merged.Database = cfg.Database
		}
	}
	return merged
}
