package service_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/syagroup/bulksms-backend/internal/errors"
	"github.com/syagroup/bulksms-backend/internal/gateway"
	"github.com/syagroup/bulksms-backend/internal/model"
	"github.com/syagroup/bulksms-backend/internal/queue"
	"github.com/syagroup/bulksms-backend/internal/repository"
	"github.com/syagroup/bulksms-backend/internal/service"
)

// --- Mocks ---

type MockTenantRepo struct {
	mu      sync.Mutex
	tenants map[int64]*model.Tenant
}

func newMockTenantRepo(tenants ...*model.Tenant) *MockTenantRepo {
	m := &MockTenantRepo{tenants: map[int64]*model.Tenant{}}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *MockTenantRepo) GetByID(id int64) (*model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, appErrors.NewTenantNotFound(id)
	}
	copied := *t
	return &copied, nil
}

func (m *MockTenantRepo) SetSendingEnabled(id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return appErrors.NewTenantNotFound(id)
	}
	t.SendingActive = enabled
	return nil
}

func (m *MockTenantRepo) SetLastMessage(id int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return appErrors.NewTenantNotFound(id)
	}
	t.LastMessage = message
	return nil
}

func (m *MockTenantRepo) IncrementQuotaUsed(id int64, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return appErrors.NewTenantNotFound(id)
	}
	t.QuotaUsed += n
	return nil
}

func (m *MockTenantRepo) SendingEnabled(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return false, appErrors.NewTenantNotFound(id)
	}
	return t.SendingActive, nil
}

func (m *MockTenantRepo) ListSendingIDs() ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int64{}
	for id, t := range m.tenants {
		if t.SendingActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MockTenantRepo) quotaUsed(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenants[id].QuotaUsed
}

type MockDeliveryRepo struct {
	mu          sync.Mutex
	eligible    []model.EligibleContact
	records     map[string]*model.DeliveryRecord
	lastLimit   int
	upsertError error
}

func newMockDeliveryRepo(eligible ...model.EligibleContact) *MockDeliveryRepo {
	return &MockDeliveryRepo{
		eligible: eligible,
		records:  map[string]*model.DeliveryRecord{},
	}
}

func (m *MockDeliveryRepo) SelectEligible(limit int) ([]model.EligibleContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if limit <= 0 {
		return []model.EligibleContact{}, nil
	}
	if limit > len(m.eligible) {
		limit = len(m.eligible)
	}
	return m.eligible[:limit], nil
}

func (m *MockDeliveryRepo) UpsertDeliveryRecord(phone, message, status string, retries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertError != nil {
		return m.upsertError
	}
	m.records[phone] = &model.DeliveryRecord{
		Phone:   phone,
		Message: message,
		Status:  status,
		Retries: retries,
	}
	return nil
}

func (m *MockDeliveryRepo) Stats() (map[string]int, error) {
	return map[string]int{}, nil
}

func (m *MockDeliveryRepo) record(phone string) *model.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[phone]
}

func (m *MockDeliveryRepo) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type MockDeliveryFactory struct {
	repo *MockDeliveryRepo
}

func (f *MockDeliveryFactory) ForTenant(t *model.Tenant) (repository.DeliveryRepositoryInterface, error) {
	return f.repo, nil
}

// MockGateway returns canned outcomes per phone; phones not listed succeed.
type MockGateway struct {
	mu       sync.Mutex
	failing  map[string]bool
	errOn    map[string]error
	calls    []string
	blocking chan struct{} // when set, Send blocks until the channel closes
	entered  chan struct{} // signaled once Send has been entered
}

func (g *MockGateway) Send(apiURL string, p gateway.Payload, token string) (*gateway.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, p.Recipient)
	blocking := g.blocking
	entered := g.entered
	g.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if blocking != nil {
		<-blocking
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errOn[p.Recipient]; err != nil {
		return nil, err
	}
	if g.failing[p.Recipient] {
		return &gateway.Response{StatusCode: 500}, nil
	}
	return &gateway.Response{StatusCode: 200, Status: "success"}, nil
}

func (g *MockGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type MockQueue struct {
	mu     sync.Mutex
	jobs   []model.BatchJob
	delays []time.Duration
}

func (q *MockQueue) Publish(topic string, job model.BatchJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *MockQueue) Subscribe(topic string, handler func(job model.BatchJob) error) error {
	return nil
}

func (q *MockQueue) published() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// --- Helpers ---

const allowedURL = "https://api.infobip.com/sms/send"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(tenants *MockTenantRepo, deliveries *MockDeliveryRepo, gw *MockGateway, q queue.Queue) *service.CampaignService {
	svc := service.NewCampaignService(
		tenants,
		&MockDeliveryFactory{repo: deliveries},
		gw,
		q,
		quietLogger(),
		10,
		2*time.Second,
	)
	svc.Pace = func(time.Duration) {}
	svc.WriteRetry.Sleep = func(time.Duration) {}
	return svc
}

func testTenant() *model.Tenant {
	return &model.Tenant{
		ID:            1,
		Name:          "acme",
		GatewayURL:    allowedURL,
		GatewayToken:  "secret-token-123",
		SenderID:      "ACME",
		Quota:         5,
		QuotaUsed:     0,
		SendingActive: true,
		LastMessage:   "hello there",
	}
}

// --- Tests ---

func TestRunBatchAllSucceed(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(
		model.EligibleContact{Phone: "201001111111"},
		model.EligibleContact{Phone: "201002222222"},
		model.EligibleContact{Phone: "201003333333"},
	)
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != model.RunOK || outcome.Sent != 3 || outcome.Failed != 0 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if used := tenants.quotaUsed(1); used != 3 {
		t.Errorf("expected quota_used=3, got %d", used)
	}
	for _, phone := range []string{"201001111111", "201002222222", "201003333333"} {
		rec := deliveries.record(phone)
		if rec == nil || rec.Status != model.StatusSent || rec.Retries != 0 {
			t.Errorf("expected sent record for %s, got %+v", phone, rec)
		}
	}
	if progress := svc.GetProgress(1); progress.Sent != 3 || progress.Failed != 0 {
		t.Errorf("expected progress {3,0}, got %+v", progress)
	}
	// Flag still enabled: a delayed reschedule must be enqueued.
	if q.published() != 1 {
		t.Errorf("expected 1 reschedule, got %d", q.published())
	}
}

func TestRunBatchFailureIncrementsRetries(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(
		model.EligibleContact{Phone: "201001111111", Retries: 2, LastStatus: model.StatusFailed},
	)
	gw := &MockGateway{failing: map[string]bool{"201001111111": true}}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Sent != 0 || outcome.Failed != 1 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	rec := deliveries.record("201001111111")
	if rec == nil || rec.Status != model.StatusFailed || rec.Retries != 3 {
		t.Errorf("expected failed record with retries=3, got %+v", rec)
	}
	if used := tenants.quotaUsed(1); used != 0 {
		t.Errorf("failed sends must not consume quota, got %d", used)
	}
}

func TestRunBatchTransportErrorRecordedAsFailed(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(
		model.EligibleContact{Phone: "201001111111"},
		model.EligibleContact{Phone: "201002222222"},
	)
	gw := &MockGateway{errOn: map[string]error{"201001111111": appErrors.ErrDeliveryFailed}}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("one contact's failure must not abort the batch: %v", err)
	}
	if outcome.Sent != 1 || outcome.Failed != 1 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if rec := deliveries.record("201001111111"); rec == nil || rec.Status != model.StatusFailed || rec.Retries != 1 {
		t.Errorf("expected failed record with retries=1, got %+v", rec)
	}
	if rec := deliveries.record("201002222222"); rec == nil || rec.Status != model.StatusSent {
		t.Errorf("expected second contact sent, got %+v", rec)
	}
}

func TestRunBatchStopped(t *testing.T) {
	tenant := testTenant()
	tenant.SendingActive = false
	tenants := newMockTenantRepo(tenant)
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != model.RunStopped {
		t.Errorf("expected stopped, got %+v", outcome)
	}
	if gw.callCount() != 0 {
		t.Errorf("stopped run must not send, got %d calls", gw.callCount())
	}
	if q.published() != 0 {
		t.Errorf("stopped run must not reschedule, got %d", q.published())
	}
}

func TestRunBatchBlockedDestination(t *testing.T) {
	tenant := testTenant()
	tenant.GatewayURL = "https://evil.example.com/sms"
	tenants := newMockTenantRepo(tenant)
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	_, err := svc.RunBatch(1)
	if !appErrors.IsBlockedDestination(err) {
		t.Fatalf("expected BlockedDestination, got %v", err)
	}
	if gw.callCount() != 0 {
		t.Errorf("expected zero gateway calls, got %d", gw.callCount())
	}
	if deliveries.recordCount() != 0 {
		t.Errorf("expected zero delivery records, got %d", deliveries.recordCount())
	}
	if used := tenants.quotaUsed(1); used != 0 {
		t.Errorf("expected zero quota consumed, got %d", used)
	}
	if q.published() != 0 {
		t.Errorf("blocked run must not reschedule, got %d", q.published())
	}
}

func TestRunBatchTenantNotFound(t *testing.T) {
	svc := newService(newMockTenantRepo(), newMockDeliveryRepo(), &MockGateway{}, &MockQueue{})

	_, err := svc.RunBatch(99)
	if !appErrors.IsTenantNotFound(err) {
		t.Fatalf("expected TenantNotFound, got %v", err)
	}
}

func TestRunBatchQuotaExhaustedDisablesSending(t *testing.T) {
	tenant := testTenant()
	tenant.Quota = 5
	tenant.QuotaUsed = 5
	tenants := newMockTenantRepo(tenant)
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != model.RunQuotaExhausted {
		t.Errorf("expected quota_exhausted, got %+v", outcome)
	}
	if gw.callCount() != 0 {
		t.Errorf("expected zero gateway calls, got %d", gw.callCount())
	}
	enabled, _ := tenants.SendingEnabled(1)
	if enabled {
		t.Error("quota exhaustion must clear the sending flag")
	}
	if q.published() != 0 {
		t.Errorf("exhausted run must not reschedule, got %d", q.published())
	}
}

func TestRunBatchCapsLimitToRemainingQuota(t *testing.T) {
	tenant := testTenant()
	tenant.Quota = 5
	tenant.QuotaUsed = 3
	tenants := newMockTenantRepo(tenant)
	deliveries := newMockDeliveryRepo(
		model.EligibleContact{Phone: "201001111111"},
		model.EligibleContact{Phone: "201002222222"},
		model.EligibleContact{Phone: "201003333333"},
	)
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	outcome, err := svc.RunBatch(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deliveries.lastLimit != 2 {
		t.Errorf("expected selector limit 2 (remaining quota), got %d", deliveries.lastLimit)
	}
	if outcome.Sent != 2 {
		t.Errorf("expected 2 sent, got %d", outcome.Sent)
	}
}

func TestRunBatchUnlimitedQuotaUsesBatchSize(t *testing.T) {
	tenant := testTenant()
	tenant.Quota = 0 // unlimited
	tenants := newMockTenantRepo(tenant)
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	svc := newService(tenants, deliveries, &MockGateway{}, &MockQueue{})

	if _, err := svc.RunBatch(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deliveries.lastLimit != 10 {
		t.Errorf("expected selector limit 10 (batch size), got %d", deliveries.lastLimit)
	}
}

func TestRunBatchNoRescheduleWhenStoppedMidBatch(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	// Stop flips the flag while the batch is in flight; the batch completes
	// and the re-read of the flag prevents the reschedule.
	gw.entered = make(chan struct{}, 1)
	gw.blocking = make(chan struct{})

	done := make(chan struct{})
	var outcome *model.RunOutcome
	var runErr error
	go func() {
		outcome, runErr = svc.RunBatch(1)
		close(done)
	}()

	<-gw.entered
	if err := svc.Stop(1); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	close(gw.blocking)
	<-done

	if runErr != nil {
		t.Fatalf("unexpected error: %v", runErr)
	}
	if outcome.Sent != 1 {
		t.Errorf("in-flight batch must complete, got %+v", outcome)
	}
	if q.published() != 0 {
		t.Errorf("expected no reschedule after stop, got %d", q.published())
	}
}

func TestRunBatchDuplicateInvocationRejected(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	gw := &MockGateway{}
	q := &MockQueue{}
	svc := newService(tenants, deliveries, gw, q)

	gw.entered = make(chan struct{}, 1)
	gw.blocking = make(chan struct{})

	done := make(chan struct{})
	go func() {
		svc.RunBatch(1)
		close(done)
	}()

	<-gw.entered
	_, err := svc.RunBatch(1)
	if !errors.Is(err, appErrors.ErrRunnerActive) {
		t.Fatalf("expected ErrRunnerActive, got %v", err)
	}
	close(gw.blocking)
	<-done

	if used := tenants.quotaUsed(1); used != 1 {
		t.Errorf("duplicate invocation must not double-count quota, got %d", used)
	}
}

func TestRunBatchStoreWriteFailureIsFatal(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	deliveries.upsertError = errors.New("disk on fire")
	svc := newService(tenants, deliveries, &MockGateway{}, &MockQueue{})

	_, err := svc.RunBatch(1)
	if err == nil {
		t.Fatal("expected fatal run error on store-write failure")
	}
}

func TestStartValidation(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	svc := newService(tenants, newMockDeliveryRepo(), &MockGateway{}, &MockQueue{})

	for _, message := range []string{"", "   ", "\t\n"} {
		if err := svc.Start(1, message); !errors.Is(err, appErrors.ErrEmptyMessage) {
			t.Errorf("Start(%q): expected ErrEmptyMessage, got %v", message, err)
		}
	}
}

func TestStartEnablesAndEnqueues(t *testing.T) {
	tenant := testTenant()
	tenant.SendingActive = false
	tenants := newMockTenantRepo(tenant)
	q := &MockQueue{}
	svc := newService(tenants, newMockDeliveryRepo(), &MockGateway{}, q)

	if err := svc.Start(1, "  big sale today  "); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	enabled, _ := tenants.SendingEnabled(1)
	if !enabled {
		t.Error("start must enable sending")
	}
	msg, _ := svc.LastMessage(1)
	if msg != "big sale today" {
		t.Errorf("expected trimmed message stored, got %q", msg)
	}
	if q.published() != 1 {
		t.Errorf("expected 1 enqueued run, got %d", q.published())
	}
	if q.delays[0] != 0 {
		t.Errorf("start must enqueue immediately, got delay %v", q.delays[0])
	}
}

func TestStopResetsProgress(t *testing.T) {
	tenants := newMockTenantRepo(testTenant())
	deliveries := newMockDeliveryRepo(model.EligibleContact{Phone: "201001111111"})
	svc := newService(tenants, deliveries, &MockGateway{}, &MockQueue{})

	if _, err := svc.RunBatch(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := svc.GetProgress(1); p.Sent != 1 {
		t.Fatalf("expected progress recorded, got %+v", p)
	}

	if err := svc.Stop(1); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if p := svc.GetProgress(1); p.Sent != 0 || p.Failed != 0 {
		t.Errorf("expected progress reset to zero, got %+v", p)
	}
}

func TestProgressDefaultsToZero(t *testing.T) {
	svc := newService(newMockTenantRepo(testTenant()), newMockDeliveryRepo(), &MockGateway{}, &MockQueue{})
	if p := svc.GetProgress(1); p.Sent != 0 || p.Failed != 0 {
		t.Errorf("expected zero progress, got %+v", p)
	}
}
