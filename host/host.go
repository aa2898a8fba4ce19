package host

// Store defines the interface for the byte-addressed cell store a
// contract runs against. Put overwrites unconditionally, Get reports
// absence with a false second return, Del removes the cell so a later
// Get misses. The engine treats backend errors as fatal: a cell store
// that cannot complete a call has no recovery path at this layer.
type Store interface {
	Put(key Key, value []byte) error
	Get(key Key) ([]byte, bool)
	Del(key Key) error
	Name() string
	Close() error
}
