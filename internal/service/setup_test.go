package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"opsboard/internal/model"
	"opsboard/internal/notify"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/service"
	"opsboard/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	admin   = policy.Actor{ID: "admin-1", Role: policy.RoleAdmin}
	manager = policy.Actor{ID: "manager-1", Role: policy.RoleManager}
	staff   = policy.Actor{ID: "staff-1", Role: policy.RoleOther}
)

// fakeClock advances one microsecond per reading so entries keep a stable order.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC), step: time.Microsecond}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Freeze stops the per-reading tick so durations can be pinned exactly.
func (c *fakeClock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, n := range s.sent {
		out = append(out, n.Code)
	}
	return out
}

type published struct {
	topic   string
	payload []byte
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

type fixture struct {
	db         *gorm.DB
	clock      *fakeClock
	sink       *recordingSink
	publisher  *recordingPublisher
	ledger     service.LedgerService
	settlement service.SettlementService
	vouchers   service.VoucherService
	approvals  service.ApprovalSetService
	audit      service.AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &fixture{
		db:        db,
		clock:     newFakeClock(),
		sink:      &recordingSink{},
		publisher: &recordingPublisher{},
	}
	deps := service.Deps{Policy: policy.Default(), Clock: f.clock, Log: zap.NewNop(), Sink: f.sink}

	txManager := repository.NewTransactionManager(db)
	auditRepo := repository.NewAuditRepository(db)
	f.ledger = service.NewLedgerService(repository.NewAccountRepository(db), repository.NewLedgerRepository(db), auditRepo, txManager, deps)
	f.settlement = service.NewSettlementService(repository.NewBatchRepository(db), auditRepo, f.ledger, txManager, deps)
	f.vouchers = service.NewVoucherService(repository.NewVoucherRepository(db), auditRepo, txManager, 0, deps)
	f.approvals = service.NewApprovalSetService(repository.NewApprovalSetRepository(db), auditRepo, txManager, f.publisher, deps)
	f.audit = service.NewAuditService(auditRepo)
	return f
}

func (f *fixture) individual(t *testing.T, name string) *model.Account {
	t.Helper()
	account, err := f.ledger.CreateAccount(context.Background(), admin, service.CreateAccountRequest{
		Name:    name,
		Kind:    model.AccountKindIndividual,
		Members: []string{name},
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) linkedPair(t *testing.T, name string, members ...string) *model.Account {
	t.Helper()
	account, err := f.ledger.CreateAccount(context.Background(), admin, service.CreateAccountRequest{
		Name:    name,
		Kind:    model.AccountKindLinkedPair,
		Members: members,
	})
	require.NoError(t, err)
	return account
}

// batch creates a production batch worth total, priced as total units at rate 1.
func (f *fixture) batch(t *testing.T, reference string, total int64, members ...uuid.UUID) *model.Batch {
	t.Helper()
	participants := make([]string, 0, len(members))
	for _, m := range members {
		participants = append(participants, m.String())
	}
	batch, err := f.settlement.CreateBatch(context.Background(), manager, service.CreateBatchRequest{
		Kind:         model.BatchKindProduction,
		Reference:    reference,
		WorkDate:     "2024-05-06",
		Participants: participants,
		Lines:        []service.BatchLineInput{{Description: "bricks", Units: total, Rate: "1"}},
	})
	require.NoError(t, err)
	return batch
}

func (f *fixture) account(t *testing.T, id uuid.UUID) *model.Account {
	t.Helper()
	account, err := f.ledger.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	check, err := f.ledger.VerifyBalance(context.Background(), id)
	require.NoError(t, err)
	require.True(t, check.InSync, "stored %d, live %d", check.Stored, check.Live)
	return check.Live
}

func (f *fixture) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func memberID(a *model.Account, i int) uuid.UUID {
	return a.Members[i].ID
}
