// Package store defines the document store contract the procurement engine
// persists through. Backends only need get/list/put-with-version/delete
// semantics; the engine never assumes a persistence technology.
package store

import (
	"context"
	"errors"
	"time"
)

// Kind names a document collection.
type Kind string

const (
	KindRequisition   Kind = "requisition"
	KindQuotation     Kind = "quotation"
	KindPurchaseOrder Kind = "purchase_order"
	KindReceiving     Kind = "receiving"
)

var (
	// ErrNotFound indicates the document does not exist for the tenant.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict indicates a stale expected version, an existing id on
	// create, or a duplicate human-facing number.
	ErrConflict = errors.New("store: version conflict")
	// ErrTimeout indicates the backend did not answer in time.
	ErrTimeout = errors.New("store: timeout")
)

// Document is the envelope stored per id. Body holds the JSON encoded
// aggregate; the other fields are indexed copies used for listing.
type Document struct {
	TenantID  string
	Kind      Kind
	ID        string
	Number    string
	Status    string
	RefID     string
	Version   int64
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status string
	RefID  string
	Limit  int
	Offset int
}

// Collection is the per-kind document store.
type Collection interface {
	Get(ctx context.Context, tenantID, id string) (Document, error)
	List(ctx context.Context, tenantID string, filter Filter) ([]Document, error)
	// Put creates the document when expectedVersion is 0 and otherwise
	// replaces it only if the stored version equals expectedVersion. The
	// returned document carries the new version.
	Put(ctx context.Context, tenantID string, doc Document, expectedVersion int64) (Document, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// Backend hands out collections and groups writes into one unit of work.
type Backend interface {
	Collection(kind Kind) Collection
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error
}

// IsRetryable reports whether the caller may re-read and retry. Timeouts are
// treated exactly like conflicts.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Matches applies the filter's status and ref predicates.
func (f Filter) Matches(doc Document) bool {
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	if f.RefID != "" && doc.RefID != f.RefID {
		return false
	}
	return true
}

// Page applies offset and limit to an already ordered slice.
func (f Filter) Page(docs []Document) []Document {
	if f.Offset > 0 {
		if f.Offset >= len(docs) {
			return nil
		}
		docs = docs[f.Offset:]
	}
	if f.Limit > 0 && len(docs) > f.Limit {
		docs = docs[:f.Limit]
	}
	return docs
}
