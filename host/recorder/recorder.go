package recorder

import (
	"github.com/oarkflow/chainstore/host"
)

// Recorder wraps a cell store and counts the calls that reach it,
// per key and in total. The dirty-tracking guarantee of the lazy
// containers — I/O proportional to mutated cells, not to domain size —
// is verified by driving them through a Recorder.
type Recorder struct {
	inner host.Store

	puts map[host.Key]int
	gets map[host.Key]int
	dels map[host.Key]int
}

func New(inner host.Store) *Recorder {
	return &Recorder{
		inner: inner,
		puts:  make(map[host.Key]int),
		gets:  make(map[host.Key]int),
		dels:  make(map[host.Key]int),
	}
}

func (r *Recorder) Name() string {
	return "recorder(" + r.inner.Name() + ")"
}

func (r *Recorder) Put(key host.Key, value []byte) error {
	r.puts[key]++
	return r.inner.Put(key, value)
}

func (r *Recorder) Get(key host.Key) ([]byte, bool) {
	r.gets[key]++
	return r.inner.Get(key)
}

func (r *Recorder) Del(key host.Key) error {
	r.dels[key]++
	return r.inner.Del(key)
}

func (r *Recorder) Close() error {
	return r.inner.Close()
}

// Puts returns the number of writes seen for key.
func (r *Recorder) Puts(key host.Key) int { return r.puts[key] }

// Gets returns the number of reads seen for key.
func (r *Recorder) Gets(key host.Key) int { return r.gets[key] }

// Dels returns the number of clears seen for key.
func (r *Recorder) Dels(key host.Key) int { return r.dels[key] }

// TotalPuts sums writes across all keys.
func (r *Recorder) TotalPuts() int { return total(r.puts) }

// TotalGets sums reads across all keys.
func (r *Recorder) TotalGets() int { return total(r.gets) }

// TotalDels sums clears across all keys.
func (r *Recorder) TotalDels() int { return total(r.dels) }

// Reset forgets all recorded counts but leaves the wrapped store alone.
func (r *Recorder) Reset() {
	r.puts = make(map[host.Key]int)
	r.gets = make(map[host.Key]int)
	r.dels = make(map[host.Key]int)
}

func total(m map[host.Key]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}
