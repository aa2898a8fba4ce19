package jsondb

import (
	"os"
	"path/filepath"

	"github.com/oarkflow/json"

	"github.com/oarkflow/chainstore/host"
)

// JsonDB keeps one JSON envelope file per cell. It exists for poking at
// contract state with ordinary shell tools, not for throughput.
type JsonDB struct {
	basePath string
}

type envelope struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func New(basePath string) (*JsonDB, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &JsonDB{basePath: basePath}, nil
}

func (s *JsonDB) Name() string {
	return "jsondb"
}

func (s *JsonDB) fileName(key host.Key) string {
	return filepath.Join(s.basePath, key.String()+".json")
}

func (s *JsonDB) Put(key host.Key, value []byte) error {
	data, err := json.Marshal(envelope{Key: key.String(), Value: value})
	if err != nil {
		return err
	}
	return os.WriteFile(s.fileName(key), data, 0644)
}

func (s *JsonDB) Get(key host.Key) ([]byte, bool) {
	data, err := os.ReadFile(s.fileName(key))
	if err != nil {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	return env.Value, true
}

func (s *JsonDB) Del(key host.Key) error {
	err := os.Remove(s.fileName(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *JsonDB) Close() error {
	return nil
}
