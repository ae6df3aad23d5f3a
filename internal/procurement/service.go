package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// Locker serialises mutations of a single document id.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ApprovalAudit receives every approval decision.
type ApprovalAudit interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// TransitionObserver counts attempted transitions by outcome.
type TransitionObserver interface {
	ObserveTransition(document, action, outcome string)
}

// Dependencies are the optional collaborators of Service. Nil fields are
// skipped.
type Dependencies struct {
	Locker    Locker
	Events    EventPublisher
	Approvals ApprovalAudit
	Metrics   TransitionObserver
	Logger    *slog.Logger
	Clock     func() time.Time
	NewID     func() string
}

// Service orchestrates procurement flows.
type Service struct {
	backend   store.Backend
	settings  Settings
	locker    Locker
	events    EventPublisher
	approvals ApprovalAudit
	metrics   TransitionObserver
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	traces    singleflight.Group
}

// NewService constructs procurement service.
func NewService(backend store.Backend, settings Settings, deps Dependencies) *Service {
	s := &Service{
		backend:   backend,
		settings:  settings,
		locker:    deps.Locker,
		events:    deps.Events,
		approvals: deps.Approvals,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
		newID:     deps.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Coordinator returns the lifecycle coordinator bound to this service.
func (s *Service) Coordinator() *Coordinator {
	return &Coordinator{svc: s}
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return newError(ErrValidation, "tenant id required")
	}
	return nil
}

// lock takes the per-document lock. A held lock is a concurrent
// modification; an unreachable lock service falls back to version checks.
func (s *Service) lock(ctx context.Context, tenantID string, kind store.Kind, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Lock(ctx, shared.DocumentLockKey(tenantID, string(kind), id))
	if err == nil {
		return release, nil
	}
	if errors.Is(err, shared.ErrLockHeld) {
		return nil, newError(ErrConcurrentModification, "%s %s is being modified", kind, id)
	}
	s.logger.Warn("document lock unavailable", slog.String("kind", string(kind)), slog.String("id", id), slog.Any("error", err))
	return func() {}, nil
}

func (s *Service) observe(kind store.Kind, action Action, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(kind), string(action), KindName(err))
	}
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	if s.events == nil {
		return
	}
	for _, evt := range events {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Error("publish procurement event", slog.String("type", string(evt.Type)), slog.String("document_id", evt.DocumentID), slog.Any("error", err))
		}
	}
}

// txError normalises failures surfacing from WithTx, such as a commit that
// lost a version race.
func txError(err error, kind store.Kind, id string) error {
	if err == nil || KindOf(err) != nil {
		return err
	}
	return storeError(err, kind, id)
}

// mutate loads a document, applies fn and writes it back guarded by the
// version it was read at. fn reports whether anything changed; unchanged
// documents are not written.
func mutate[T any, P interface {
	*T
	storable
}](ctx context.Context, s *Service, tenantID, id string, action Action, fn func(P) (bool, error)) (P, error) {
	kind := P(nil).kind()
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, tenantID, kind, id)
	if err != nil {
		s.observe(kind, action, err)
		return nil, err
	}
	defer release()

	var out P
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		doc, err := load[T, P](ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		expected := doc.meta().Version
		changed, err := fn(doc)
		if err != nil {
			return err
		}
		if changed {
			if err := save(ctx, tx, doc, expected); err != nil {
				return err
			}
		}
		out = doc
		return nil
	})
	err = txError(err, kind, id)
	s.observe(kind, action, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// create stores a new document. Ids are fresh, so a conflict means the
// number is taken.
func (s *Service) create(ctx context.Context, doc storable) error {
	err := save(ctx, s.backend, doc, 0)
	if errors.Is(err, store.ErrConflict) {
		err = newError(ErrValidation, "%s number %s already in use", doc.kind(), doc.meta().Number)
	}
	s.observe(doc.kind(), ActionCreate, err)
	return err
}

func (s *Service) recordApproval(ctx context.Context, req *Requisition, action shared.ApprovalAction, level int, note string) {
	if s.approvals == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	actorID := actor.ID
	if actorID == "" {
		actorID = "system"
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		TenantID: req.TenantID,
		Module:   "REQUISITION",
		RefID:    shared.ApprovalRefID(req.TenantID, req.ID),
		Level:    level,
		ActorID:  actorID,
		Action:   action,
		Note:     note,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Error("record requisition approval", slog.String("requisition_id", req.ID), slog.Any("error", err))
	}
}

func actorID(ctx context.Context) string {
	return shared.ActorFromContext(ctx).ID
}

// remove deletes a document once check accepts its current state.
func remove[T any, P interface {
	*T
	storable
}](ctx context.Context, s *Service, tenantID, id string, check func(P) error) error {
	kind := P(nil).kind()
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	release, err := s.lock(ctx, tenantID, kind, id)
	if err != nil {
		return err
	}
	defer release()
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		doc, err := load[T, P](ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := check(doc); err != nil {
			return err
		}
		return storeError(tx.Collection(kind).Delete(ctx, tenantID, id), kind, id)
	})
	err = txError(err, kind, id)
	s.observe(kind, ActionDelete, err)
	return err
}
