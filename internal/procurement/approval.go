package procurement

import (
	"slices"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

// Decision is the state of a single approval level.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionSkipped  Decision = "skipped"
)

// ApprovalRecord is one level of a requisition's approval chain.
type ApprovalRecord struct {
	Level        int        `json:"level"`
	ApproverID   string     `json:"approver_id"`
	ApproverName string     `json:"approver_name"`
	Decision     Decision   `json:"decision"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	Comment      string     `json:"comment,omitempty"`
}

// ApprovalLevel configures a level. Levels whose MinTotal exceeds the
// requisition total are left out of the instantiated chain.
type ApprovalLevel struct {
	Level        int    `json:"level"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name"`
	MinTotal     int64  `json:"min_total"`
}

// ApprovalPolicy is the tenant configured chain template.
type ApprovalPolicy struct {
	Levels []ApprovalLevel `json:"levels"`
}

// DefaultApprovalPolicy is a two level chain with no thresholds.
func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{Levels: []ApprovalLevel{
		{Level: 1, ApproverName: "Department head"},
		{Level: 2, ApproverName: "Procurement manager"},
	}}
}

// Validate ensures at least one level and unique positive level numbers.
func (p ApprovalPolicy) Validate() error {
	if len(p.Levels) == 0 {
		return newError(ErrValidation, "approval policy needs at least one level")
	}
	seen := make(map[int]bool, len(p.Levels))
	for _, lvl := range p.Levels {
		if lvl.Level < 1 {
			return newError(ErrValidation, "approval level %d must be positive", lvl.Level)
		}
		if seen[lvl.Level] {
			return newError(ErrValidation, "approval level %d configured twice", lvl.Level)
		}
		if lvl.MinTotal < 0 {
			return newError(ErrValidation, "approval level %d has negative threshold", lvl.Level)
		}
		seen[lvl.Level] = true
	}
	return nil
}

// Instantiate builds the pending chain for a requisition total. The first
// configured level is always kept and levels are renumbered from 1.
func (p ApprovalPolicy) Instantiate(total money.Money) ApprovalChain {
	levels := slices.Clone(p.Levels)
	slices.SortFunc(levels, func(a, b ApprovalLevel) int { return a.Level - b.Level })
	chain := make(ApprovalChain, 0, len(levels))
	for i, lvl := range levels {
		if i > 0 && lvl.MinTotal > total.Amount {
			continue
		}
		chain = append(chain, ApprovalRecord{
			Level:        len(chain) + 1,
			ApproverID:   lvl.ApproverID,
			ApproverName: lvl.ApproverName,
			Decision:     DecisionPending,
		})
	}
	return chain
}

// ApprovalChain is an ordered list of approval records.
type ApprovalChain []ApprovalRecord

type chainOutcome int

const (
	chainPending chainOutcome = iota
	chainApproved
	chainRejected
)

// DecisionInput is the payload of an approval decision.
type DecisionInput struct {
	Level        int
	Decision     Decision
	ApproverID   string
	ApproverName string
	Comment      string
}

// decide applies in on a copy of the chain. Levels are strictly sequential:
// every earlier level must already be approved.
func (c ApprovalChain) decide(in DecisionInput, at time.Time) (ApprovalChain, chainOutcome, error) {
	if in.Decision != DecisionApproved && in.Decision != DecisionRejected {
		return nil, chainPending, newError(ErrValidation, "decision must be approved or rejected, got %q", in.Decision)
	}
	if in.Level < 1 || in.Level > len(c) {
		return nil, chainPending, newError(ErrValidation, "approval level %d out of range 1..%d", in.Level, len(c))
	}
	idx := in.Level - 1
	if c[idx].Decision != DecisionPending {
		return nil, chainPending, newError(ErrIllegalTransition, "approval level %d already %s", in.Level, c[idx].Decision)
	}
	for _, prev := range c[:idx] {
		if prev.Decision != DecisionApproved {
			return nil, chainPending, newError(ErrOutOfOrderApproval, "level %d is %s; decide it before level %d", prev.Level, prev.Decision, in.Level)
		}
	}

	next := slices.Clone(c)
	decidedAt := at
	rec := &next[idx]
	rec.Decision = in.Decision
	rec.DecidedBy = in.ApproverID
	rec.DecidedAt = &decidedAt
	rec.Comment = in.Comment
	if rec.ApproverID == "" {
		rec.ApproverID = in.ApproverID
	}
	if rec.ApproverName == "" {
		rec.ApproverName = in.ApproverName
	}

	if in.Decision == DecisionRejected {
		for i := idx + 1; i < len(next); i++ {
			next[i].Decision = DecisionSkipped
		}
		return next, chainRejected, nil
	}
	if in.Level == len(next) {
		return next, chainApproved, nil
	}
	return next, chainPending, nil
}

// CurrentLevel returns the first pending level, or 0 when none is pending.
func (c ApprovalChain) CurrentLevel() int {
	for _, rec := range c {
		if rec.Decision == DecisionPending {
			return rec.Level
		}
	}
	return 0
}
