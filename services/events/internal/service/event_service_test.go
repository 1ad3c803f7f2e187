package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/services/events/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, organiserID int64, req *domain.SubmitRequest) (*domain.EventRequest, error) {
	args := m.Called(ctx, organiserID, req)
	e, _ := args.Get(0).(*domain.EventRequest)
	return e, args.Error(1)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*domain.EventRequest, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*domain.EventRequest)
	return e, args.Error(1)
}

func (m *mockRepo) ListByOrganiser(ctx context.Context, organiserID int64, limit, offset int) ([]domain.EventRequest, error) {
	args := m.Called(ctx, organiserID, limit, offset)
	l, _ := args.Get(0).([]domain.EventRequest)
	return l, args.Error(1)
}

func (m *mockRepo) List(ctx context.Context, status *domain.RequestStatus, limit, offset int) ([]domain.EventRequest, error) {
	args := m.Called(ctx, status, limit, offset)
	l, _ := args.Get(0).([]domain.EventRequest)
	return l, args.Error(1)
}

func (m *mockRepo) Decide(ctx context.Context, id string, status domain.RequestStatus, reason *string, decidedBy string) (*domain.EventRequest, error) {
	args := m.Called(ctx, id, status, reason, decidedBy)
	e, _ := args.Get(0).(*domain.EventRequest)
	return e, args.Error(1)
}

func (m *mockRepo) ListApproved(ctx context.Context, onOrAfter time.Time) ([]domain.EventRequest, error) {
	args := m.Called(ctx, onOrAfter)
	l, _ := args.Get(0).([]domain.EventRequest)
	return l, args.Error(1)
}

var (
	organiser = &auth.Session{UserID: 10, Username: "org1", Role: auth.RoleOrganiser}
	cso       = &auth.Session{UserID: 1, Username: "chief", Role: auth.RoleCSO}
)

const reqID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func newTestService(repo *mockRepo, bus events.EventBus) *eventService {
	cfg := &config.Config{Pass: config.PassConfig{TimeZone: "Asia/Kolkata"}}
	return NewEventService(repo, bus, cfg).(*eventService)
}

func date(s string) domain.Date {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return domain.Date{Time: t}
}

func validSubmit() domain.SubmitRequest {
	return domain.SubmitRequest{
		Department:       "CSE",
		EventName:        " Hackathon ",
		Description:      "24h build",
		DateFrom:         date("2025-02-01"),
		DateTo:           date("2025-02-02"),
		ExpectedStudents: 150,
		MaxCapacity:      200,
	}
}

func TestSubmit(t *testing.T) {
	repo := new(mockRepo)
	bus := events.NewMemoryBus()
	svc := newTestService(repo, bus)

	repo.On("Create", mock.Anything, int64(10), mock.MatchedBy(func(r *domain.SubmitRequest) bool {
		return r.EventName == "Hackathon"
	})).Return(&domain.EventRequest{ID: reqID, OrganiserID: 10, EventName: "Hackathon", Status: domain.RequestPending}, nil).Once()

	e, err := svc.Submit(context.Background(), organiser, validSubmit())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, e.Status)
	assert.Len(t, bus.Published(events.EventRequestSubmitted), 1)
	repo.AssertExpectations(t)
}

func TestSubmitValidation(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, events.NewMemoryBus())

	mutate := map[string]func(*domain.SubmitRequest){
		"department":        func(r *domain.SubmitRequest) { r.Department = " " },
		"event_name":        func(r *domain.SubmitRequest) { r.EventName = "" },
		"date_from":         func(r *domain.SubmitRequest) { r.DateFrom = domain.Date{} },
		"date_to":           func(r *domain.SubmitRequest) { r.DateTo = date("2025-01-31") },
		"max_capacity":      func(r *domain.SubmitRequest) { r.MaxCapacity = 0 },
		"expected_students": func(r *domain.SubmitRequest) { r.ExpectedStudents = 500 },
	}
	for field, fn := range mutate {
		req := validSubmit()
		fn(&req)
		_, err := svc.Submit(context.Background(), organiser, req)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	_, err := svc.Submit(context.Background(), cso, validSubmit())
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecide(t *testing.T) {
	repo := new(mockRepo)
	bus := events.NewMemoryBus()
	svc := newTestService(repo, bus)
	pending := &domain.EventRequest{ID: reqID, EventName: "Hackathon", Status: domain.RequestPending}

	repo.On("GetByID", mock.Anything, reqID).Return(pending, nil)
	repo.On("Decide", mock.Anything, reqID, domain.RequestRejected, mock.MatchedBy(func(r *string) bool {
		return r != nil && *r == "Clashes with exams"
	}), "chief").Return(&domain.EventRequest{ID: reqID, EventName: "Hackathon", Status: domain.RequestRejected}, nil).Once()

	_, err := svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "rejected"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rejection_reason", verr.Field)

	e, err := svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "rejected", RejectionReason: " Clashes with exams "})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, e.Status)

	msgs := bus.Published(events.EventRequestDecided)
	require.Len(t, msgs, 1)
	var ev events.EventRequestDecidedEvent
	require.NoError(t, msgs[0].Decode(&ev))
	assert.Equal(t, "Clashes with exams", ev.RejectionReason)
	assert.Equal(t, "chief", ev.DecidedBy)

	_, err = svc.Decide(context.Background(), organiser, reqID, domain.Decision{Status: "approved"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "pending"})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Decide(context.Background(), cso, "nope", domain.Decision{Status: "approved"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecideOnlyPending(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, events.NewMemoryBus())
	repo.On("GetByID", mock.Anything, reqID).Return(&domain.EventRequest{ID: reqID, Status: domain.RequestApproved}, nil)

	_, err := svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "rejected", RejectionReason: "late"})
	assert.ErrorIs(t, err, domain.ErrAlreadyFinal)
	repo.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideLostRace(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, events.NewMemoryBus())
	repo.On("GetByID", mock.Anything, reqID).Return(&domain.EventRequest{ID: reqID, Status: domain.RequestPending}, nil)
	repo.On("Decide", mock.Anything, reqID, domain.RequestApproved, (*string)(nil), "chief").Return(nil, nil)

	_, err := svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "approved"})
	assert.ErrorIs(t, err, domain.ErrAlreadyFinal)
}

func TestDecideStoreFailure(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, events.NewMemoryBus())
	repo.On("GetByID", mock.Anything, reqID).Return(nil, errors.Join(domain.ErrStore, errors.New("down")))

	_, err := svc.Decide(context.Background(), cso, reqID, domain.Decision{Status: "approved"})
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestListApprovedUsesLocalDate(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, events.NewMemoryBus())
	// 20:00 UTC on Jan 31 is already Feb 1 in Asia/Kolkata.
	svc.now = func() time.Time { return time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC) }

	repo.On("ListApproved", mock.Anything, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)).Return([]domain.EventRequest{{ID: reqID}}, nil).Once()
	list, err := svc.ListApproved(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	repo.AssertExpectations(t)
}
