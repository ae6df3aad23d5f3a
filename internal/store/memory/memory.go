// Package memory is an in-process store.Backend used by tests and by
// single-node deployments running with STORE_DRIVER=memory.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

type key struct {
	tenant string
	id     string
}

// Backend keeps documents in maps guarded by a single mutex.
type Backend struct {
	mu   sync.RWMutex
	docs map[store.Kind]map[key]store.Document
	now  func() time.Time
}

// New constructs an empty Backend.
func New() *Backend {
	return &Backend{docs: make(map[store.Kind]map[key]store.Document), now: time.Now}
}

// Collection returns the collection for kind.
func (b *Backend) Collection(kind store.Kind) store.Collection {
	return &collection{backend: b, kind: kind}
}

// WithTx stages writes in an overlay and applies them atomically on success.
// The commit re-validates every touched document so a concurrent writer
// outside the transaction surfaces as store.ErrConflict.
func (b *Backend) WithTx(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	tx := &txBackend{base: b, writes: make(map[store.Kind]map[key]*staged)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (b *Backend) lookup(kind store.Kind, k key) (store.Document, bool) {
	doc, ok := b.docs[kind][k]
	return doc, ok
}

func (b *Backend) numberTaken(kind store.Kind, tenant, number, id string) bool {
	if number == "" {
		return false
	}
	for k, doc := range b.docs[kind] {
		if k.tenant == tenant && doc.Number == number && doc.ID != id {
			return true
		}
	}
	return false
}

func (b *Backend) write(kind store.Kind, doc store.Document) {
	if b.docs[kind] == nil {
		b.docs[kind] = make(map[key]store.Document)
	}
	b.docs[kind][key{tenant: doc.TenantID, id: doc.ID}] = doc
}

type collection struct {
	backend *Backend
	kind    store.Kind
}

func (c *collection) Get(ctx context.Context, tenantID, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	c.backend.mu.RLock()
	defer c.backend.mu.RUnlock()
	doc, ok := c.backend.lookup(c.kind, key{tenant: tenantID, id: id})
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(doc), nil
}

func (c *collection) List(ctx context.Context, tenantID string, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.backend.mu.RLock()
	var docs []store.Document
	for k, doc := range c.backend.docs[c.kind] {
		if k.tenant == tenantID && filter.Matches(doc) {
			docs = append(docs, clone(doc))
		}
	}
	c.backend.mu.RUnlock()
	sortDocuments(docs)
	return filter.Page(docs), nil
}

func (c *collection) Put(ctx context.Context, tenantID string, doc store.Document, expectedVersion int64) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	doc.TenantID = tenantID
	doc.Kind = c.kind
	current, exists := c.backend.lookup(c.kind, key{tenant: tenantID, id: doc.ID})
	next, err := prepare(doc, current, exists, expectedVersion, c.backend.now())
	if err != nil {
		return store.Document{}, err
	}
	if c.backend.numberTaken(c.kind, tenantID, next.Number, next.ID) {
		return store.Document{}, store.ErrConflict
	}
	c.backend.write(c.kind, next)
	return clone(next), nil
}

func (c *collection) Delete(ctx context.Context, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	k := key{tenant: tenantID, id: id}
	if _, ok := c.backend.lookup(c.kind, k); !ok {
		return store.ErrNotFound
	}
	delete(c.backend.docs[c.kind], k)
	return nil
}

// prepare applies the versioning rules shared by direct and staged writes.
func prepare(doc, current store.Document, exists bool, expectedVersion int64, now time.Time) (store.Document, error) {
	switch {
	case expectedVersion == 0 && exists:
		return store.Document{}, store.ErrConflict
	case expectedVersion != 0 && !exists:
		return store.Document{}, store.ErrConflict
	case exists && current.Version != expectedVersion:
		return store.Document{}, store.ErrConflict
	}
	doc.Version = expectedVersion + 1
	doc.UpdatedAt = now
	if exists {
		doc.CreatedAt = current.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	doc.Body = slices.Clone(doc.Body)
	return doc, nil
}

func sortDocuments(docs []store.Document) {
	slices.SortFunc(docs, func(a, b store.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func clone(doc store.Document) store.Document {
	doc.Body = slices.Clone(doc.Body)
	return doc
}
