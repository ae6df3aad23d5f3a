package memory

import (
	"context"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// staged is one pending write inside a transaction. A nil doc marks a delete.
type staged struct {
	doc         *store.Document
	baseVersion int64
}

type txBackend struct {
	base   *Backend
	writes map[store.Kind]map[key]*staged
}

func (t *txBackend) Collection(kind store.Kind) store.Collection {
	return &txCollection{tx: t, kind: kind}
}

// WithTx on an open transaction joins it.
func (t *txBackend) WithTx(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	return fn(ctx, t)
}

// view resolves a document through the overlay first.
func (t *txBackend) view(kind store.Kind, k key) (store.Document, bool) {
	if w, ok := t.writes[kind][k]; ok {
		if w.doc == nil {
			return store.Document{}, false
		}
		return *w.doc, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	return t.base.lookup(kind, k)
}

func (t *txBackend) stage(kind store.Kind, k key, doc *store.Document) {
	if t.writes[kind] == nil {
		t.writes[kind] = make(map[key]*staged)
	}
	if w, ok := t.writes[kind][k]; ok {
		w.doc = doc
		return
	}
	t.base.mu.RLock()
	current, exists := t.base.lookup(kind, k)
	t.base.mu.RUnlock()
	var baseVersion int64
	if exists {
		baseVersion = current.Version
	}
	t.writes[kind][k] = &staged{doc: doc, baseVersion: baseVersion}
}

func (t *txBackend) commit() error {
	b := t.base
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, writes := range t.writes {
		for k, w := range writes {
			var version int64
			if current, ok := b.lookup(kind, k); ok {
				version = current.Version
			}
			if version != w.baseVersion {
				return store.ErrConflict
			}
			if w.doc != nil && b.numberTaken(kind, k.tenant, w.doc.Number, w.doc.ID) {
				return store.ErrConflict
			}
		}
	}
	for kind, writes := range t.writes {
		for k, w := range writes {
			if w.doc == nil {
				delete(b.docs[kind], k)
				continue
			}
			b.write(kind, *w.doc)
		}
	}
	return nil
}

type txCollection struct {
	tx   *txBackend
	kind store.Kind
}

func (c *txCollection) Get(ctx context.Context, tenantID, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	doc, ok := c.tx.view(c.kind, key{tenant: tenantID, id: id})
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(doc), nil
}

func (c *txCollection) List(ctx context.Context, tenantID string, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[key]bool)
	var docs []store.Document
	for k, w := range c.tx.writes[c.kind] {
		seen[k] = true
		if w.doc != nil && k.tenant == tenantID && filter.Matches(*w.doc) {
			docs = append(docs, clone(*w.doc))
		}
	}
	b := c.tx.base
	b.mu.RLock()
	for k, doc := range b.docs[c.kind] {
		if !seen[k] && k.tenant == tenantID && filter.Matches(doc) {
			docs = append(docs, clone(doc))
		}
	}
	b.mu.RUnlock()
	sortDocuments(docs)
	return filter.Page(docs), nil
}

func (c *txCollection) Put(ctx context.Context, tenantID string, doc store.Document, expectedVersion int64) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	doc.TenantID = tenantID
	doc.Kind = c.kind
	k := key{tenant: tenantID, id: doc.ID}
	current, exists := c.tx.view(c.kind, k)
	next, err := prepare(doc, current, exists, expectedVersion, c.tx.base.now())
	if err != nil {
		return store.Document{}, err
	}
	c.tx.base.mu.RLock()
	taken := c.tx.base.numberTaken(c.kind, tenantID, next.Number, next.ID)
	c.tx.base.mu.RUnlock()
	if taken {
		return store.Document{}, store.ErrConflict
	}
	c.tx.stage(c.kind, k, &next)
	return clone(next), nil
}

func (c *txCollection) Delete(ctx context.Context, tenantID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := key{tenant: tenantID, id: id}
	if _, ok := c.tx.view(c.kind, k); !ok {
		return store.ErrNotFound
	}
	c.tx.stage(c.kind, k, nil)
	return nil
}
