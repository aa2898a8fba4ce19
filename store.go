package chainstore

import (
	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/host/flydb"
	"github.com/oarkflow/chainstore/host/jsondb"
	"github.com/oarkflow/chainstore/host/memdb"
	"github.com/oarkflow/chainstore/host/sqldb"
)

// Open returns the host cell store named by the config. The default is
// the in-process store.
func Open(c *Config) (host.Store, error) {
	switch c.Storage {
	case "flydb":
		return flydb.New(c.Path, c.Compress)
	case "jsondb":
		return jsondb.New(c.Path)
	case "sqldb":
		return sqldb.New(c.Database)
	default:
		return memdb.New()
	}
}
