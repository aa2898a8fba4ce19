package sqldb

import (
	"errors"

	"github.com/oarkflow/squealx"
	"github.com/oarkflow/squealx/drivers/mysql"
	"github.com/oarkflow/squealx/drivers/postgres"

	"github.com/oarkflow/chainstore/host"
)

// SQLDB parks cells in a kv_store(key, value) table for hosts that keep
// contract state in a relational database.
type SQLDB struct {
	db *squealx.DB
}

// New connects to the database named by config and ensures the cell
// table exists.
func New(config squealx.Config) (*SQLDB, error) {
	dsn := config.ToString()
	var db *squealx.DB
	var err error
	switch config.Driver {
	case "mysql", "mariadb":
		db, err = mysql.Open(dsn, "mysql")
	case "postgres", "psql", "postgresql":
		db, err = postgres.Open(dsn, "postgres")
	default:
		return nil, errors.New("No acceptable driver provided")
	}
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv_store (key VARCHAR(64) PRIMARY KEY, value BYTEA)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLDB{db: db}, nil
}

func (s *SQLDB) Name() string {
	return "sqldb"
}

func (s *SQLDB) Put(key host.Key, value []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO kv_store (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		key.String(), value,
	)
	return err
}

func (s *SQLDB) Get(key host.Key) ([]byte, bool) {
	var value []byte
	err := s.db.Get(&value, "SELECT value FROM kv_store WHERE key = $1", key.String())
	if err != nil {
		return nil, false
	}
	return value, true
}

func (s *SQLDB) Del(key host.Key) error {
	_, err := s.db.Exec("DELETE FROM kv_store WHERE key = $1", key.String())
	return err
}

func (s *SQLDB) Close() error {
	return s.db.Close()
}
