package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/havenboard/checkin/internal/domain"
	"github.com/havenboard/checkin/internal/service"
)

// ---------- Mocks ----------

type mockCheckInRepo struct {
	nextID    int
	checkIns  map[string]*domain.CheckIn
	order     []string // newest first
	insertErr error
	updateErr error
	getErr    error
}

func newMockCheckInRepo() *mockCheckInRepo {
	return &mockCheckInRepo{
		nextID:   1,
		checkIns: make(map[string]*domain.CheckIn),
	}
}

func (m *mockCheckInRepo) Insert(_ context.Context, anonymousID string, deviceInfo *string) (*domain.CheckIn, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}

	id := fmt.Sprintf("id-%d", m.nextID)
	m.nextID++

	now := time.Now().UTC()
	c := &domain.CheckIn{
		ID:          id,
		AnonymousID: anonymousID,
		DeviceInfo:  deviceInfo,
		Status:      domain.StatusActive,
		CheckInTime: now,
		UpdatedAt:   now,
	}

	m.checkIns[id] = c
	m.order = append([]string{id}, m.order...)
	return c, nil
}

func (m *mockCheckInRepo) GetByID(_ context.Context, id string) (*domain.CheckIn, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.checkIns[id], nil
}

func (m *mockCheckInRepo) Update(_ context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}

	c, ok := m.checkIns[id]
	if !ok {
		return nil, nil
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.CheckOutTime != nil {
		t := *patch.CheckOutTime
		c.CheckOutTime = &t
	}
	c.UpdatedAt = time.Now().UTC()
	return c, nil
}

func (m *mockCheckInRepo) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := m.checkIns[id]; !ok {
		return false, nil
	}
	delete(m.checkIns, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *mockCheckInRepo) ListActive(_ context.Context) ([]domain.CheckIn, error) {
	var cs []domain.CheckIn
	for _, id := range m.order {
		if c := m.checkIns[id]; c.Status == domain.StatusActive {
			cs = append(cs, *c)
		}
	}
	return cs, nil
}

func (m *mockCheckInRepo) ListAll(_ context.Context) ([]domain.CheckIn, error) {
	var cs []domain.CheckIn
	for _, id := range m.order {
		cs = append(cs, *m.checkIns[id])
	}
	return cs, nil
}

func (m *mockCheckInRepo) FirstByAnonymousID(_ context.Context, anonymousID string, activeOnly bool) (*domain.CheckIn, error) {
	for _, id := range m.order {
		c := m.checkIns[id]
		if c.AnonymousID != anonymousID {
			continue
		}
		if activeOnly && c.Status != domain.StatusActive {
			continue
		}
		return c, nil
	}
	return nil, nil
}

func (m *mockCheckInRepo) ListByAnonymousID(_ context.Context, anonymousID string) ([]domain.CheckIn, error) {
	var cs []domain.CheckIn
	for _, id := range m.order {
		if c := m.checkIns[id]; c.AnonymousID == anonymousID {
			cs = append(cs, *c)
		}
	}
	return cs, nil
}

type mockListCache struct {
	active        []domain.CheckIn
	all           []domain.CheckIn
	hasActive     bool
	hasAll        bool
	invalidations int
}

func (m *mockListCache) GetActive(_ context.Context) ([]domain.CheckIn, bool) {
	return m.active, m.hasActive
}

func (m *mockListCache) SetActive(_ context.Context, cs []domain.CheckIn) {
	m.active, m.hasActive = cs, true
}

func (m *mockListCache) GetAll(_ context.Context) ([]domain.CheckIn, bool) {
	return m.all, m.hasAll
}

func (m *mockListCache) SetAll(_ context.Context, cs []domain.CheckIn) {
	m.all, m.hasAll = cs, true
}

func (m *mockListCache) Invalidate(_ context.Context) {
	m.active, m.all = nil, nil
	m.hasActive, m.hasAll = false, false
	m.invalidations++
}

type mockPublisher struct {
	subjects []string
	err      error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

func newService() (service.CheckInService, *mockCheckInRepo, *mockListCache, *mockPublisher) {
	repo := newMockCheckInRepo()
	lc := &mockListCache{}
	bus := &mockPublisher{}
	return service.NewCheckInService(repo, lc, bus), repo, lc, bus
}

// ---------- Tests ----------

func TestInsertGeneratesAnonymousID(t *testing.T) {
	svc, _, _, bus := newService()

	c, err := svc.Insert(context.Background(), &domain.CheckInReq{})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if c.AnonymousID == "" {
		t.Fatal("expected generated anonymousId, got empty")
	}
	if c.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", c.Status)
	}
	if c.CheckOutTime != nil {
		t.Fatal("expected no checkOutTime on a fresh check-in")
	}
	if len(bus.subjects) != 1 || bus.subjects[0] != "checkin.created" {
		t.Fatalf("expected checkin.created event, got %v", bus.subjects)
	}
}

func TestInsertKeepsProvidedAnonymousID(t *testing.T) {
	svc, _, _, _ := newService()

	first, err := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "abc"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	second, err := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "abc"})
	if err != nil {
		t.Fatalf("duplicate anonymousId must be allowed: %v", err)
	}

	if first.AnonymousID != "abc" || second.AnonymousID != "abc" {
		t.Fatalf("expected anonymousId to round-trip, got %q and %q", first.AnonymousID, second.AnonymousID)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids, both got %q", first.ID)
	}
}

func TestCheckOutMismatchIsUnauthorized(t *testing.T) {
	svc, repo, _, _ := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})

	_, err := svc.CheckOut(context.Background(), c.ID, "u2")
	if err != domain.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	stored := repo.checkIns[c.ID]
	if stored.Status != domain.StatusActive || stored.CheckOutTime != nil {
		t.Fatal("mismatched checkout must leave the record unmodified")
	}
}

func TestCheckOutMissingIsNotFound(t *testing.T) {
	svc, _, _, _ := newService()

	if _, err := svc.CheckOut(context.Background(), "nope", "u1"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound with anonymousId, got %v", err)
	}
	if _, err := svc.CheckOut(context.Background(), "nope", ""); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound without anonymousId, got %v", err)
	}
}

func TestCheckOutMatchingTransitions(t *testing.T) {
	svc, _, _, bus := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})

	out, err := svc.CheckOut(context.Background(), c.ID, "u1")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if out.Status != domain.StatusCheckedOut {
		t.Fatalf("expected checked-out, got %s", out.Status)
	}
	if out.CheckOutTime == nil {
		t.Fatal("expected checkOutTime to be set")
	}
	if out.CheckOutTime.Before(out.CheckInTime) {
		t.Fatal("checkOutTime must not precede checkInTime")
	}
	if bus.subjects[len(bus.subjects)-1] != "checkin.checked_out" {
		t.Fatalf("expected checkin.checked_out event, got %v", bus.subjects)
	}
}

func TestCheckOutWithoutAnonymousIDSkipsOwnershipCheck(t *testing.T) {
	svc, _, _, _ := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})

	out, err := svc.CheckOut(context.Background(), c.ID, "")
	if err != nil {
		t.Fatalf("bare checkout failed: %v", err)
	}
	if out.Status != domain.StatusCheckedOut {
		t.Fatalf("expected checked-out, got %s", out.Status)
	}
}

func TestCheckOutTwiceRestampsCheckOutTime(t *testing.T) {
	svc, _, _, _ := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})

	first, err := svc.CheckOut(context.Background(), c.ID, "u1")
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	firstStamp := *first.CheckOutTime

	time.Sleep(time.Millisecond)

	second, err := svc.CheckOut(context.Background(), c.ID, "u1")
	if err != nil {
		t.Fatalf("second checkout must still succeed: %v", err)
	}
	if !second.CheckOutTime.After(firstStamp) {
		t.Fatal("second checkout must re-stamp checkOutTime")
	}
	if second.Status != domain.StatusCheckedOut {
		t.Fatalf("expected checked-out, got %s", second.Status)
	}
}

func TestDeleteThenLookup(t *testing.T) {
	svc, _, _, bus := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})

	if err := svc.Delete(context.Background(), c.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if bus.subjects[len(bus.subjects)-1] != "checkin.deleted" {
		t.Fatalf("expected checkin.deleted event, got %v", bus.subjects)
	}

	if err := svc.Delete(context.Background(), c.ID); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := svc.CheckOut(context.Background(), c.ID, "u1"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	got, err := svc.GetByAnonymousID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected no record after delete")
	}
}

func TestGetActiveExcludesCheckedOut(t *testing.T) {
	svc, _, _, _ := newService()

	a, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})
	b, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u2"})

	if _, err := svc.CheckOut(context.Background(), a.ID, "u1"); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	active, err := svc.GetActiveCheckIns(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, c := range active {
		if c.Status == domain.StatusCheckedOut {
			t.Fatalf("active list contains checked-out record %s", c.ID)
		}
		if c.ID == a.ID {
			t.Fatal("active list contains the checked-out record")
		}
	}
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("expected only %s active, got %v", b.ID, active)
	}

	all, err := svc.GetAllCheckIns(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both records in the full list, got %d", len(all))
	}
}

func TestUpdateRefreshesUpdatedAt(t *testing.T) {
	svc, _, _, _ := newService()

	c, _ := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"})
	before := c.UpdatedAt

	time.Sleep(time.Millisecond)

	st := domain.StatusCheckedOut
	updated, err := svc.Update(context.Background(), c.ID, domain.CheckInPatch{Status: &st})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.UpdatedAt.After(before) {
		t.Fatal("expected updatedAt to be refreshed")
	}
	if updated.Status != domain.StatusCheckedOut {
		t.Fatalf("expected checked-out, got %s", updated.Status)
	}

	if _, err := svc.Update(context.Background(), "nope", domain.CheckInPatch{Status: &st}); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReadsGoThroughCache(t *testing.T) {
	svc, repo, lc, _ := newService()

	if _, err := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if lc.invalidations == 0 {
		t.Fatal("insert must invalidate the list cache")
	}

	if _, err := svc.GetActiveCheckIns(context.Background()); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !lc.hasActive {
		t.Fatal("expected the active list to be cached after a miss")
	}

	// A hit must serve the cached copy, not the store.
	repo.checkIns = map[string]*domain.CheckIn{}
	repo.order = nil
	cs, err := svc.GetActiveCheckIns(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cs) != 1 {
		t.Fatalf("expected cached list of 1, got %d", len(cs))
	}
}

func TestInsertStoreFailure(t *testing.T) {
	svc, repo, _, bus := newService()
	repo.insertErr = fmt.Errorf("connection refused")

	if _, err := svc.Insert(context.Background(), &domain.CheckInReq{AnonymousID: "u1"}); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if len(bus.subjects) != 0 {
		t.Fatalf("no event may be published on failure, got %v", bus.subjects)
	}
}
