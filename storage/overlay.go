package storage

import (
	"errors"
	"sort"
)

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a Database so a multi-step operation can be
// committed as one batch or dropped entirely. Reads see buffered writes first.
// An Overlay is not safe for concurrent use.
type Overlay struct {
	base    Database
	pending map[string]overlayEntry
	closed  bool
}

// NewOverlay starts a buffered view over base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string]overlayEntry)}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if entry, ok := o.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = overlayEntry{deleted: true}
	return nil
}

// Dirty reports the number of buffered keys.
func (o *Overlay) Dirty() int { return len(o.pending) }

// Commit flushes the buffered writes to the base database in key order.
func (o *Overlay) Commit() error {
	if o.closed {
		return errOverlayClosed
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		entry := o.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.closed = true
	o.pending = nil
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.closed = true
	o.pending = nil
}
