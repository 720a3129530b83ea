package storage

import (
	"sort"
	"sync"
)

// ChangeKind says which part of the cache changed.
type ChangeKind string

const (
	ChangeLoaded      ChangeKind = "loaded"
	ChangeUpserted    ChangeKind = "upserted"
	ChangeRemoved     ChangeKind = "removed"
	ChangeStage       ChangeKind = "stage"
	ChangeComments    ChangeKind = "comments"
	ChangeAttachments ChangeKind = "attachments"
	ChangeStages      ChangeKind = "stages"
)

// Change describes one committed write. TaskID is empty for project-wide
// changes.
type Change struct {
	Kind      ChangeKind
	ProjectID string
	TaskID    string
}

// observers fans changes out to subscribers. Callers must not hold their own
// lock while calling notify.
type observers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
}

func (o *observers) subscribe(fn func(Change)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func(Change))
	}
	id := o.next
	o.next++
	o.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) notify(changes ...Change) {
	o.mu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
