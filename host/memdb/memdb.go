package memdb

import (
	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"
	maps "github.com/oarkflow/xsync"

	"github.com/oarkflow/chainstore/host"
)

// MemDB is the in-process cell store. Every contract invocation in
// tests gets its own instance, handed to the engine explicitly; there
// is no shared process-global storage state.
type MemDB struct {
	id     string
	client maps.IMap[string, []byte]
}

func New() (*MemDB, error) {
	m := &MemDB{
		id:     xid.New().String(),
		client: maps.NewMap[string, []byte](),
	}
	log.Debug().Str("instance", m.id).Msg("memdb: opened cell store")
	return m, nil
}

func (m *MemDB) Name() string {
	return "memdb"
}

func (m *MemDB) Put(key host.Key, value []byte) error {
	// Callers keep ownership of value; cells must not alias it.
	buf := make([]byte, len(value))
	copy(buf, value)
	m.client.Set(key.String(), buf)
	return nil
}

func (m *MemDB) Get(key host.Key) ([]byte, bool) {
	return m.client.Get(key.String())
}

func (m *MemDB) Del(key host.Key) error {
	m.client.Del(key.String())
	return nil
}

// Len returns the number of live cells. Test-only convenience; the
// engine itself never asks a backend for its size.
func (m *MemDB) Len() uint32 {
	return uint32(m.client.Size())
}

func (m *MemDB) ForEach(fn func(string, []byte) bool) {
	m.client.ForEach(fn)
}

func (m *MemDB) Close() error {
	log.Debug().Str("instance", m.id).Msg("memdb: closed cell store")
	return nil
}
