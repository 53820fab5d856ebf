package client

import "github.com/brokersql/cas-go/protocol"

// QueryHandle tracks one open result set's cursor position and metadata.
// It is created on a successful execute, mutated only by fetch, and
// destroyed by closeQuery or connection close.
type QueryHandle struct {
	ID      int32
	Total   int32
	Current int32
	Columns []protocol.ColumnDescriptor

	// LastPage is the most recently decoded page of rows, held for
	// callers that want to inspect it without re-fetching.
	LastPage []protocol.Row
}

// Done reports whether every tuple in the result set has been fetched.
func (h *QueryHandle) Done() bool {
	return h.Current >= h.Total
}

// advance records a freshly fetched page, enforcing the current <= total
// invariant spec.md §8 requires.
func (h *QueryHandle) advance(rows []protocol.Row) {
	h.LastPage = rows
	h.Current += int32(len(rows))
	if h.Current > h.Total {
		h.Current = h.Total
	}
}

// handleTable is the session's list of open query handles, keyed by
// server-assigned handle id. It has no locking of its own: it is mutated
// inside the action queue's single-flight slot, and by Close, which tears
// handles down without entering the queue.
type handleTable struct {
	byID map[int32]*QueryHandle
}

func newHandleTable() *handleTable {
	return &handleTable{byID: make(map[int32]*QueryHandle)}
}

func (t *handleTable) put(h *QueryHandle) {
	t.byID[h.ID] = h
}

func (t *handleTable) get(id int32) (*QueryHandle, bool) {
	h, ok := t.byID[id]
	return h, ok
}

func (t *handleTable) remove(id int32) {
	delete(t.byID, id)
}

func (t *handleTable) ids() []int32 {
	ids := make([]int32, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	return ids
}
