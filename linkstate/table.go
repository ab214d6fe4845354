package linkstate

import (
	"sync"
)

// Table is the shared link-quality table: a concurrent map from directed
// edge to its authoritative tensor. All access goes through the accessor
// API; the internal maps are never exposed across goroutine boundaries.
//
// Entries are created on first report and updated on each subsequent report
// with a higher version. They are never implicitly deleted; staleness is
// instead discounted by the stability function.
type Table struct {
	mtx sync.RWMutex

	// byFrom indexes tensors by originating node so path finding can walk
	// out-edges without scanning the whole table.
	byFrom map[string]map[string]Tensor

	size int
}

// NewTable returns an empty link-quality table.
func NewTable() *Table {
	return &Table{
		byFrom: make(map[string]map[string]Tensor),
	}
}

// Update merges a reported tensor into the table. The update is applied only
// if the edge is unknown or the report carries a strictly higher version
// than the authoritative tensor, making the table converge to the highest
// version regardless of arrival order. It returns whether the update was
// applied.
func (t *Table) Update(tensor Tensor) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	out, ok := t.byFrom[tensor.From]
	if !ok {
		out = make(map[string]Tensor)
		t.byFrom[tensor.From] = out
	}

	if existing, ok := out[tensor.To]; ok {
		if tensor.Version <= existing.Version {
			return false
		}
	} else {
		t.size++
	}

	out[tensor.To] = tensor
	return true
}

// Get returns the authoritative tensor for the given directed edge.
func (t *Table) Get(from, to string) (Tensor, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	tensor, ok := t.byFrom[from][to]
	return tensor, ok
}

// OutEdges returns copies of all tensors originating at the given node.
func (t *Table) OutEdges(node string) []Tensor {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	out := t.byFrom[node]
	if len(out) == 0 {
		return nil
	}

	tensors := make([]Tensor, 0, len(out))
	for _, tensor := range out {
		tensors = append(tensors, tensor)
	}

	return tensors
}

// Snapshot returns a copy of every tensor currently in the table.
func (t *Table) Snapshot() []Tensor {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	tensors := make([]Tensor, 0, t.size)
	for _, out := range t.byFrom {
		for _, tensor := range out {
			tensors = append(tensors, tensor)
		}
	}

	return tensors
}

// Len returns the number of directed edges tracked by the table.
func (t *Table) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	return t.size
}
