package threadtable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/libos-go/internal/core/domain"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			tbl := NewWithShards(tt.input)
			if len(tbl.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d", tt.input, len(tbl.shards), tt.expected)
			}
		})
	}
}

func TestTable_AddGetRemove(t *testing.T) {
	tbl := New()
	proc := domain.NewProcess(10)
	th := domain.NewThread(domain.ThreadConfig{TID: 10, TGID: 10, Process: proc})

	if !tbl.Add(th) {
		t.Fatal("Add() = false, want true")
	}
	if tbl.Add(th) {
		t.Error("Add() of duplicate TID should fail")
	}
	if got, ok := tbl.Get(10); !ok || got != th {
		t.Errorf("Get(10) = (%v, %v)", got, ok)
	}
	if _, ok := tbl.Get(11); ok {
		t.Error("Get(11) should miss")
	}
	if got, ok := tbl.Remove(10); !ok || got != th {
		t.Errorf("Remove(10) = (%v, %v)", got, ok)
	}
	if tbl.Count() != 0 {
		t.Errorf("Count() = %d, want 0", tbl.Count())
	}
}

func TestTable_PutRemovesAtLastReference(t *testing.T) {
	tbl := New()
	th := domain.NewThread(domain.ThreadConfig{TID: 5, TGID: 5, Internal: true})
	th.Get()
	tbl.Add(th)

	tbl.Put(th)
	if _, ok := tbl.Get(5); !ok {
		t.Fatal("record removed while a reference remains")
	}
	tbl.Put(th)
	if _, ok := tbl.Get(5); ok {
		t.Error("record should be removed after its last reference")
	}
	tbl.Put(nil)
}

func TestTable_Group(t *testing.T) {
	tbl := New()
	procA := domain.NewProcess(100)
	procB := domain.NewProcess(200)
	for i := int32(0); i < 4; i++ {
		tbl.Add(domain.NewThread(domain.ThreadConfig{TID: 100 + i, TGID: 100, Process: procA}))
	}
	tbl.Add(domain.NewThread(domain.ThreadConfig{TID: 200, TGID: 200, Process: procB}))

	dead, _ := tbl.Get(101)
	g := dead.Lock()
	g.MarkDead()
	g.Unlock()

	members := tbl.Group(100)
	if len(members) != 3 {
		t.Fatalf("Group(100) len = %d, want 3", len(members))
	}
	for _, m := range members {
		if m.TGID != 100 || m.TID == 101 {
			t.Errorf("Group(100) returned tid %d tgid %d", m.TID, m.TGID)
		}
	}
}

func TestTable_Concurrent(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(tid int32) {
			defer wg.Done()
			th := domain.NewThread(domain.ThreadConfig{TID: tid, TGID: 1, Internal: true})
			tbl.Add(th)
			tbl.Get(tid)
			if tid%2 == 0 {
				tbl.Put(th)
			}
		}(int32(i + 1))
	}
	wg.Wait()

	if got := tbl.Count(); got != 50 {
		t.Errorf("Count() = %d, want 50", got)
	}
}
