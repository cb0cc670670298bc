package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

var discardLogger = zerolog.Nop()

// ---------------------------------------------------------------------------
// In-memory stub member repository
// ---------------------------------------------------------------------------

type stubMemberRepo struct {
	mu        sync.Mutex
	byID      map[string]*domain.Member
	updateErr map[string]error // per external id, if set Update fails
}

func newStubMemberRepo() *stubMemberRepo {
	return &stubMemberRepo{
		byID:      make(map[string]*domain.Member),
		updateErr: make(map[string]error),
	}
}

func cloneMember(m *domain.Member) *domain.Member {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

func (r *stubMemberRepo) GetOrCreate(_ context.Context, externalID string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[externalID]; ok {
		return cloneMember(m), nil
	}
	m := &domain.Member{ExternalID: externalID}
	r.byID[externalID] = cloneMember(m)
	return cloneMember(m), nil
}

func (r *stubMemberRepo) FindByExternalID(_ context.Context, externalID string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[externalID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return cloneMember(m), nil
}

func (r *stubMemberRepo) Update(_ context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[m.ExternalID]; err != nil {
		return err
	}
	r.byID[m.ExternalID] = cloneMember(m)
	return nil
}

func (r *stubMemberRepo) ListVerified(_ context.Context) ([]*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Member
	for _, m := range r.byID {
		if m.Verified {
			out = append(out, cloneMember(m))
		}
	}
	return out, nil
}

func (r *stubMemberRepo) List(_ context.Context, filter ports.MemberFilter) ([]*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Member
	for _, m := range r.byID {
		if filter.Verified != nil && m.Verified != *filter.Verified {
			continue
		}
		if filter.Whitelisted != nil && m.Whitelisted != *filter.Whitelisted {
			continue
		}
		out = append(out, cloneMember(m))
	}
	return out, nil
}

// get returns the stored record directly, for assertions.
func (r *stubMemberRepo) get(externalID string) *domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneMember(r.byID[externalID])
}

func (r *stubMemberRepo) seed(m *domain.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ExternalID] = cloneMember(m)
}

// ---------------------------------------------------------------------------
// Stub audit event repository
// ---------------------------------------------------------------------------

type stubEventRepo struct {
	mu        sync.Mutex
	events    []*domain.AuditEvent
	appendErr error
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{}
}

func (r *stubEventRepo) Append(_ context.Context, e *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, e)
	return nil
}

func (r *stubEventRepo) ListByExternalID(_ context.Context, externalID string, _ int) ([]*domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditEvent
	for _, e := range r.events {
		if e.ExternalID == externalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubEventRepo) typesFor(externalID string) []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventType
	for _, e := range r.events {
		if e.ExternalID == externalID {
			out = append(out, e.Type)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Stub ledger client
// ---------------------------------------------------------------------------

type stubLedger struct {
	mu           sync.Mutex
	supply       float64
	supplyErr    error
	supplyCalls  int
	balances     map[string]float64
	balanceErrs  map[string]error
	balanceCalls int
	signatures   []string
	sigErr       error
	sigCalls     int
	deltas       map[string]*ports.TransferDeltas
	deltaErrs    map[string]error
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		balances:    make(map[string]float64),
		balanceErrs: make(map[string]error),
		deltas:      make(map[string]*ports.TransferDeltas),
		deltaErrs:   make(map[string]error),
	}
}

func (l *stubLedger) GetSupply(_ context.Context, _ string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supplyCalls++
	if l.supplyErr != nil {
		return 0, l.supplyErr
	}
	return l.supply, nil
}

func (l *stubLedger) GetBalance(_ context.Context, wallet, _ string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceCalls++
	if err := l.balanceErrs[wallet]; err != nil {
		return 0, err
	}
	return l.balances[wallet], nil
}

func (l *stubLedger) ListRecentSignatures(_ context.Context, _ string, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sigCalls++
	if l.sigErr != nil {
		return nil, l.sigErr
	}
	if limit > 0 && limit < len(l.signatures) {
		return l.signatures[:limit], nil
	}
	return l.signatures, nil
}

func (l *stubLedger) GetTransferDeltas(_ context.Context, signature, _, _, _ string) (*ports.TransferDeltas, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.deltaErrs[signature]; err != nil {
		return nil, err
	}
	d, ok := l.deltas[signature]
	if !ok {
		return nil, domain.ErrTransferUnreadable
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Stub transfer matcher / ownership evaluator
// ---------------------------------------------------------------------------

type stubMatcher struct {
	result *ports.MatchResult
	err    error
	calls  int
}

func (m *stubMatcher) Match(_ context.Context, _ string, _ float64) (*ports.MatchResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type stubEvaluator struct {
	mu      sync.Mutex
	results map[string]*ports.OwnershipResult
	errs    map[string]error
	calls   int
}

func newStubEvaluator() *stubEvaluator {
	return &stubEvaluator{
		results: make(map[string]*ports.OwnershipResult),
		errs:    make(map[string]error),
	}
}

func (e *stubEvaluator) Evaluate(_ context.Context, wallet string) (*ports.OwnershipResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err := e.errs[wallet]; err != nil {
		return nil, err
	}
	if r, ok := e.results[wallet]; ok {
		clone := *r
		return &clone, nil
	}
	return &ports.OwnershipResult{}, nil
}

// ---------------------------------------------------------------------------
// Stub access dispatcher
// ---------------------------------------------------------------------------

type stubDispatcher struct {
	mu      sync.Mutex
	actions []ports.AccessAction
}

func (d *stubDispatcher) Enqueue(a ports.AccessAction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
}

func (d *stubDispatcher) EnqueueBatch(as []ports.AccessAction) {
	for _, a := range as {
		d.Enqueue(a)
	}
}

func (d *stubDispatcher) byType(t ports.AccessActionType) []ports.AccessAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ports.AccessAction
	for _, a := range d.actions {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}
