// Package threadtable is the LibOS registry of thread records.
//
// Records are sharded by TID to keep lock contention down when many threads
// spawn and exit at once.
package threadtable

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Table is a concurrent-safe registry of thread records keyed by TID.
type Table struct {
	shards    []*shard
	shardMask uint32
}

type shard struct {
	mu    sync.RWMutex
	items map[int32]*domain.Thread
}

// New creates a table with the default shard count.
func New() *Table {
	return NewWithShards(DefaultShardCount)
}

// NewWithShards creates a table with the given shard count.
// shardCount must be a power of 2.
func NewWithShards(shardCount int) *Table {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	tbl := &Table{
		shards:    make([]*shard, shardCount),
		shardMask: uint32(shardCount - 1),
	}
	for i := range tbl.shards {
		tbl.shards[i] = &shard{items: make(map[int32]*domain.Thread)}
	}
	return tbl
}

func (tbl *Table) getShard(tid int32) *shard {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], uint32(tid))
	return tbl.shards[murmur3.Sum32(key[:])&tbl.shardMask]
}

// Add registers t. It returns false if the TID is already taken.
func (tbl *Table) Add(t *domain.Thread) bool {
	s := tbl.getShard(t.TID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[t.TID]; ok {
		return false
	}
	s.items[t.TID] = t
	return true
}

// Get looks up a record by TID.
func (tbl *Table) Get(tid int32) (*domain.Thread, bool) {
	s := tbl.getShard(tid)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[tid]
	return t, ok
}

// Remove unregisters a record and returns it.
func (tbl *Table) Remove(tid int32) (*domain.Thread, bool) {
	s := tbl.getShard(tid)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[tid]
	if ok {
		delete(s.items, tid)
	}
	return t, ok
}

// Put drops the table's reference to t. The record is unregistered once its
// last reference is gone.
func (tbl *Table) Put(t *domain.Thread) {
	if t == nil || !t.Put() {
		return
	}
	s := tbl.getShard(t.TID)
	s.mu.Lock()
	if cur, ok := s.items[t.TID]; ok && cur == t {
		delete(s.items, t.TID)
	}
	s.mu.Unlock()
}

// Range calls fn for every record until fn returns false. Shards are visited
// one at a time, so the view is not a consistent snapshot.
func (tbl *Table) Range(fn func(t *domain.Thread) bool) {
	for _, s := range tbl.shards {
		s.mu.RLock()
		for _, t := range s.items {
			if !fn(t) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Group returns the live members of a thread group.
func (tbl *Table) Group(tgid int32) []*domain.Thread {
	var out []*domain.Thread
	tbl.Range(func(t *domain.Thread) bool {
		if t.TGID == tgid {
			out = append(out, t)
		}
		return true
	})
	live := out[:0]
	for _, t := range out {
		if t.IsAlive() {
			live = append(live, t)
		}
	}
	return live
}

// Count returns the number of registered records.
func (tbl *Table) Count() int {
	n := 0
	for _, s := range tbl.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
