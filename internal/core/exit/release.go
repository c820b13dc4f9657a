package exit

import (
	"fmt"
	"sync"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// Resource kinds released at thread exit.
const (
	KindHandleMap     = "handle_map"
	KindExec          = "exec"
	KindRobustList    = "robust_list"
	KindClearChildTID = "clear_child_tid"
)

// ResourceReleaser is the default HandleReleaser and FutexReleaser. It keeps
// a ledger of what has been released and rejects a second release of the
// same handle table or handle.
type ResourceReleaser struct {
	mu         sync.Mutex
	handleMaps map[*domain.HandleMap]struct{}
	handles    map[*domain.Handle]struct{}
	counts     map[string]int
}

// NewResourceReleaser creates an empty ledger.
func NewResourceReleaser() *ResourceReleaser {
	return &ResourceReleaser{
		handleMaps: make(map[*domain.HandleMap]struct{}),
		handles:    make(map[*domain.Handle]struct{}),
		counts:     make(map[string]int),
	}
}

// PutHandleMap implements HandleReleaser.
func (r *ResourceReleaser) PutHandleMap(m *domain.HandleMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handleMaps[m]; ok {
		return fmt.Errorf("handle map %d released twice", m.ID)
	}
	r.handleMaps[m] = struct{}{}
	r.counts[KindHandleMap]++
	return nil
}

// PutHandle implements HandleReleaser.
func (r *ResourceReleaser) PutHandle(h *domain.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h]; ok {
		return fmt.Errorf("handle %q released twice", h.Path)
	}
	r.handles[h] = struct{}{}
	r.counts[KindExec]++
	return nil
}

// ReleaseRobustList implements FutexReleaser.
func (r *ResourceReleaser) ReleaseRobustList(_ *domain.Thread, head uintptr) error {
	if head == 0 {
		return fmt.Errorf("robust list head is nil")
	}
	r.mu.Lock()
	r.counts[KindRobustList]++
	r.mu.Unlock()
	return nil
}

// ReleaseClearChildTID implements FutexReleaser.
func (r *ResourceReleaser) ReleaseClearChildTID(_ *domain.Thread, addr uintptr) error {
	if addr == 0 {
		return fmt.Errorf("clear_child_tid address is nil")
	}
	r.mu.Lock()
	r.counts[KindClearChildTID]++
	r.mu.Unlock()
	return nil
}

// Count returns how many resources of kind have been released.
func (r *ResourceReleaser) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Total returns the number of released resources of every kind.
func (r *ResourceReleaser) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}
