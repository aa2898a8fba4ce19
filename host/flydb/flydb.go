package flydb

import (
	"github.com/oarkflow/flydb"
	"github.com/oarkflow/log"

	"github.com/oarkflow/chainstore/host"
	"github.com/oarkflow/chainstore/lib"
)

// FlyDB persists cells in a flydb database on disk, optionally gzipping
// payloads. Cell keys are stored as their raw 32 bytes.
type FlyDB struct {
	client   *flydb.DB[[]byte, []byte]
	compress bool
}

func New(basePath string, compressed bool) (*FlyDB, error) {
	client, err := flydb.Open[[]byte, []byte](basePath, nil)
	if err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("flydb: open failed")
		return nil, err
	}
	return &FlyDB{client: client, compress: compressed}, nil
}

func (s *FlyDB) Name() string {
	return "flydb"
}

func (s *FlyDB) Put(key host.Key, value []byte) error {
	if s.compress {
		compressed, err := lib.Compress(value)
		if err != nil {
			return err
		}
		return s.client.Put(key[:], compressed)
	}
	return s.client.Put(key[:], value)
}

func (s *FlyDB) Get(key host.Key) ([]byte, bool) {
	data, err := s.client.Get(key[:])
	if err != nil {
		return nil, false
	}
	if s.compress {
		plain, err := lib.Decompress(data)
		if err != nil {
			return nil, false
		}
		return plain, true
	}
	return data, true
}

func (s *FlyDB) Del(key host.Key) error {
	return s.client.Delete(key[:])
}

func (s *FlyDB) Close() error {
	return s.client.Close()
}
