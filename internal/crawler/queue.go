package crawler

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

const minFrontierCapacity = 16

// Frontier implements a thread-safe FIFO ring buffer of crawl entries. A URL
// is accepted at most once over the lifetime of the frontier.
type Frontier struct {
	mu     sync.Mutex
	items  []storage.QueueEntry
	head   int
	size   int
	queued mapset.Set[string]
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		items:  make([]storage.QueueEntry, minFrontierCapacity),
		queued: mapset.NewThreadUnsafeSet[string](),
	}
}

// Push appends an entry to the tail unless its URL was queued before.
// Returns true if added, false if duplicate
func (f *Frontier) Push(entry storage.QueueEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.queued.Add(entry.URL) {
		return false
	}

	if f.size == len(f.items) {
		f.grow()
	}
	f.items[(f.head+f.size)%len(f.items)] = entry
	f.size++

	return true
}

// Pop removes and returns the head entry.
// Returns (empty, false) if the frontier is empty
func (f *Frontier) Pop() (storage.QueueEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size == 0 {
		return storage.QueueEntry{}, false
	}

	entry := f.items[f.head]
	f.items[f.head] = storage.QueueEntry{}
	f.head = (f.head + 1) % len(f.items)
	f.size--

	return entry, true
}

// Seen reports whether url was ever pushed
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued.Contains(url)
}

// IsEmpty returns true if the frontier has no items
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size == 0
}

// Size returns the current number of items in the frontier
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// GetAllEntries returns a snapshot of the pending entries in FIFO order
func (f *Frontier) GetAllEntries() []storage.QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]storage.QueueEntry, f.size)
	for i := range entries {
		entries[i] = f.items[(f.head+i)%len(f.items)]
	}
	return entries
}

// grow doubles the buffer and unwraps the ring so head is at index 0
func (f *Frontier) grow() {
	items := make([]storage.QueueEntry, len(f.items)*2)
	for i := 0; i < f.size; i++ {
		items[i] = f.items[(f.head+i)%len(f.items)]
	}
	f.items = items
	f.head = 0
}
