package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/internal/utils"
	"github.com/diagnosis/gatepass/pkg/auth"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/pkg/qrcode"
	"github.com/diagnosis/gatepass/services/passes/internal/domain"
	"github.com/diagnosis/gatepass/services/passes/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// minPartialContact is the shortest value a substring contact lookup accepts.
const minPartialContact = 4

type PassService interface {
	Issue(ctx context.Context, session *auth.Session, req domain.IssueRequest) (*domain.IssuedPass, error)
	BulkIssue(ctx context.Context, session *auth.Session, req domain.BulkIssueRequest) (*domain.BulkResult, error)
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.Verification, error)
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.IssuedPass, error)
	RenderQR(ctx context.Context, id string) ([]byte, error)
	UpdateStatus(ctx context.Context, session *auth.Session, id, status string) (*domain.Visitor, error)
	List(ctx context.Context, session *auth.Session, filter domain.ListFilter, limit, offset int) ([]domain.Visitor, error)
}

type passService struct {
	visitors repository.VisitorRepository
	events   repository.EventLookup
	eventBus events.EventBus
	config   *config.Config
	loc      *time.Location
	now      func() time.Time
}

func NewPassService(
	visitors repository.VisitorRepository,
	eventLookup repository.EventLookup,
	eventBus events.EventBus,
	config *config.Config,
) PassService {
	return newPassService(visitors, eventLookup, eventBus, config)
}

func newPassService(
	visitors repository.VisitorRepository,
	eventLookup repository.EventLookup,
	eventBus events.EventBus,
	config *config.Config,
) *passService {
	return &passService{
		visitors: visitors,
		events:   eventLookup,
		eventBus: eventBus,
		config:   config,
		loc:      config.Pass.Location(),
		now:      time.Now,
	}
}

func (s *passService) today() time.Time {
	return domain.Day(s.now(), s.loc)
}

func isStaffIssuer(session *auth.Session) bool {
	return session.Is(auth.RoleOrganiser) || session.Is(auth.RoleCSO)
}

func (s *passService) Issue(ctx context.Context, session *auth.Session, req domain.IssueRequest) (*domain.IssuedPass, error) {
	if session != nil && !isStaffIssuer(session) {
		return nil, domain.ErrForbidden
	}

	event, err := s.resolveEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	nv, err := s.prepare(req, event, session)
	if err != nil {
		return nil, err
	}

	pass, err := s.insert(ctx, nv)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Pass issued", "visitor_id", pass.Visitor.ID, "status", pass.Visitor.Status, "self_service", session == nil)
	return pass, nil
}

func (s *passService) BulkIssue(ctx context.Context, session *auth.Session, req domain.BulkIssueRequest) (*domain.BulkResult, error) {
	if !isStaffIssuer(session) {
		return nil, domain.ErrForbidden
	}
	if len(req.Entries) == 0 {
		return nil, domain.Invalid("entries", "at least one entry is required")
	}
	if limit := s.config.Pass.BulkMax; limit > 0 && len(req.Entries) > limit {
		return nil, domain.Invalid("entries", fmt.Sprintf("at most %d entries per batch", limit))
	}

	event, err := s.resolveEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		pass *domain.IssuedPass
		err  error
	}
	outcomes := make([]outcome, len(req.Entries))

	var g errgroup.Group
	if n := s.config.Pass.BulkConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, entry := range req.Entries {
		entry = withBatchDefaults(entry, req)
		g.Go(func() error {
			nv, err := s.prepare(entry, event, session)
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			outcomes[i].pass, outcomes[i].err = s.insert(ctx, nv)
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.BulkResult{
		Requested: len(req.Entries),
		Issued:    []domain.IssuedPass{},
		Failures:  []domain.BulkFailure{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, domain.BulkFailure{
				Index: i,
				Name:  req.Entries[i].Name,
				Error: failureMessage(o.err),
			})
			continue
		}
		result.Issued = append(result.Issued, *o.pass)
	}
	result.Succeeded = len(result.Issued)
	result.Failed = len(result.Failures)

	logger.InfoContext(ctx, "Bulk issuance finished",
		"requested", result.Requested, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

func withBatchDefaults(e domain.IssueRequest, req domain.BulkIssueRequest) domain.IssueRequest {
	if e.EventName == "" {
		e.EventName = req.EventName
	}
	if e.DateFrom == "" && e.DateTo == "" {
		e.DateFrom, e.DateTo = req.DateFrom, req.DateTo
	}
	if e.Category == "" {
		e.Category = req.Category
	}
	return e
}

func failureMessage(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrStore):
		return "store unavailable, retry this entry"
	default:
		return err.Error()
	}
}

// resolveEvent returns nil when id is empty.
func (s *passService) resolveEvent(ctx context.Context, id string) (*domain.EventSummary, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.Invalid("event_id", "must be a valid id")
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if event == nil {
		return nil, domain.Invalid("event_id", "unknown event")
	}
	if !event.Approved() {
		return nil, domain.ErrEventNotApproved
	}
	return event, nil
}

// prepare validates and normalises one request. Nothing is written.
func (s *passService) prepare(req domain.IssueRequest, event *domain.EventSummary, session *auth.Session) (*domain.NewVisitor, error) {
	selfService := session == nil

	nv := &domain.NewVisitor{
		Name:           utils.NormalizeName(req.Name),
		Email:          utils.NormalizeEmail(req.Email),
		Phone:          utils.NormalizePhone(req.Phone),
		RegisterNumber: utils.NormalizeRegisterNumber(req.RegisterNumber),
		Purpose:        strings.TrimSpace(req.Purpose),
	}

	if nv.Name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if nv.Email == "" && selfService {
		return nil, domain.Invalid("email", "is required")
	}
	if nv.Email != "" && !utils.IsValidEmail(nv.Email) {
		return nil, domain.Invalid("email", "is not a valid email address")
	}
	if nv.Phone == "" && selfService {
		return nil, domain.Invalid("phone", "is required")
	}
	if nv.Phone != "" && !utils.IsValidPhone(nv.Phone) {
		return nil, domain.Invalid("phone", "is not a valid phone number")
	}

	rawCategory := strings.ToLower(strings.TrimSpace(req.Category))
	if rawCategory == "" && selfService {
		rawCategory = string(domain.CategoryStudent)
	}
	category, ok := domain.ParseVisitorCategory(rawCategory)
	if !ok {
		return nil, domain.Invalid("visitor_category", "must be one of student, speaker, vip")
	}
	nv.Category = category
	nv.QRColor = domain.QRColor(category)

	if selfService && category == domain.CategoryStudent && nv.RegisterNumber == "" {
		return nil, domain.Invalid("register_number", "is required for students")
	}

	switch {
	case event != nil:
		if selfService && event.Window.Check(s.today()) == domain.WindowExpired {
			return nil, domain.Invalid("event_id", "event has already ended")
		}
		id := event.ID
		nv.EventID = &id
		nv.EventName = event.Name
		nv.Window = event.Window
	case selfService:
		return nil, domain.Invalid("event_id", "is required")
	default:
		nv.EventName = strings.TrimSpace(req.EventName)
		if nv.EventName == "" {
			return nil, domain.Invalid("event_name", "is required when no event_id is given")
		}
		w, err := domain.ParseWindow(req.DateFrom, req.DateTo)
		if err != nil {
			return nil, err
		}
		nv.Window = w
	}

	if selfService {
		nv.Status = s.selfServiceStatus()
	} else {
		nv.Status = domain.StatusApproved
		username := session.Username
		nv.IssuedBy = &username
		if nv.Purpose == "" {
			nv.Purpose = "Speaker/VIP Guest for " + nv.EventName
		}
	}
	return nv, nil
}

func (s *passService) selfServiceStatus() domain.VisitorStatus {
	if st, ok := domain.ParseVisitorStatus(s.config.Pass.SelfServiceStatus); ok && st != domain.StatusRevoked {
		return st
	}
	return domain.StatusPending
}

func (s *passService) insert(ctx context.Context, nv *domain.NewVisitor) (*domain.IssuedPass, error) {
	v, err := s.visitors.Insert(ctx, nv)
	if err != nil {
		return nil, fmt.Errorf("failed to insert visitor: %w", err)
	}

	pass, err := s.issued(v)
	if err != nil {
		return nil, err
	}

	event := events.PassIssuedEvent{
		VisitorID: v.ID,
		Name:      v.Name,
		Email:     v.Email,
		Category:  string(v.Category),
		EventName: v.EventName,
		Status:    string(v.Status),
		IssuedAt:  v.CreatedAt,
	}
	if v.IssuedBy != nil {
		event.IssuedBy = *v.IssuedBy
	}
	if err := s.eventBus.Publish(ctx, events.PassIssued, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pass issued event", "error", err, "visitor_id", v.ID)
	}
	return pass, nil
}

func (s *passService) issued(v *domain.Visitor) (*domain.IssuedPass, error) {
	url, err := qrcode.VerifyURL(s.config.Pass.PublicBaseURL, v.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify url: %w", err)
	}
	return &domain.IssuedPass{Visitor: v, VerifyURL: url}, nil
}

func (s *passService) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.Verification, error) {
	checkedAt := s.now()
	id := strings.TrimSpace(req.ID)

	result, visitor, err := s.decide(ctx, id, checkedAt)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Pass verification",
		"visitor_id", id,
		"granted", result.Verified,
		"reason", result.Reason,
		"guard", req.GuardUsername,
		"gate", req.Gate,
	)

	if req.Gate {
		scan := events.PassScannedEvent{
			VisitorID: id,
			Guard:     req.GuardUsername,
			Granted:   result.Verified,
			Reason:    string(result.Reason),
			ScannedAt: checkedAt,
		}
		if visitor != nil {
			scan.VisitorID = visitor.ID
		}
		if err := s.eventBus.Publish(ctx, events.PassScanned, scan); err != nil {
			logger.ErrorContext(ctx, "Failed to publish pass scanned event", "error", err, "visitor_id", id)
		}
	}
	return result, nil
}

// canonicalID reduces any form uuid.Parse accepts (braces, urn:uuid:, upper
// case) to the hyphenated lower-case text Postgres stores.
func canonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

func (s *passService) decide(ctx context.Context, id string, at time.Time) (*domain.Verification, *domain.Visitor, error) {
	id, ok := canonicalID(id)
	if !ok {
		return domain.Denied(domain.DenyNotFound, at), nil, nil
	}

	v, err := s.visitors.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load visitor: %w", err)
	}
	if v == nil {
		return domain.Denied(domain.DenyNotFound, at), nil, nil
	}

	switch v.Status {
	case domain.StatusApproved:
	case domain.StatusRevoked:
		return domain.Denied(domain.DenyRevoked, at), v, nil
	default:
		return domain.Denied(domain.DenyPending, at), v, nil
	}

	switch v.Window.Check(domain.Day(at, s.loc)) {
	case domain.WindowNotYetValid:
		return domain.Denied(domain.DenyNotYetValid, at), v, nil
	case domain.WindowExpired:
		return domain.Denied(domain.DenyExpired, at), v, nil
	}
	return domain.Granted(v, at), v, nil
}

func (s *passService) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.IssuedPass, error) {
	v, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issued(v)
}

func (s *passService) lookup(ctx context.Context, req domain.RetrieveRequest) (*domain.Visitor, error) {
	raw := strings.TrimSpace(req.Value)
	if raw == "" {
		return nil, domain.Invalid("value", "is required")
	}

	var value string
	switch req.By {
	case domain.ByID:
		return s.get(ctx, raw)
	case domain.ByEmail:
		value = utils.NormalizeEmail(raw)
	case domain.ByPhone:
		value = utils.NormalizePhone(raw)
		if value == "" {
			return nil, domain.Invalid("value", "must contain digits")
		}
	default:
		return nil, domain.Invalid("by", "must be one of id, email, phone")
	}

	exact, err := s.visitors.FindByContact(ctx, req.By, value, true, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find visitor: %w", err)
	}
	if len(exact) > 0 {
		return &exact[0], nil
	}

	if len(value) < minPartialContact {
		return nil, domain.ErrNotFound
	}
	partial, err := s.visitors.FindByContact(ctx, req.By, value, false, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to find visitor: %w", err)
	}
	switch len(partial) {
	case 0:
		return nil, domain.ErrNotFound
	case 1:
		return &partial[0], nil
	default:
		return nil, domain.ErrAmbiguousContact
	}
}

func (s *passService) get(ctx context.Context, id string) (*domain.Visitor, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	v, err := s.visitors.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load visitor: %w", err)
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (s *passService) RenderQR(ctx context.Context, id string) ([]byte, error) {
	v, err := s.get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	pass, err := s.issued(v)
	if err != nil {
		return nil, err
	}
	return qrcode.PNG(pass.VerifyURL, v.QRColor, s.config.Pass.QRSize)
}

func (s *passService) UpdateStatus(ctx context.Context, session *auth.Session, id, status string) (*domain.Visitor, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	target, ok := domain.ParseVisitorStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return nil, domain.Invalid("status", "must be approved or revoked")
	}
	if target == domain.StatusPending {
		return nil, fmt.Errorf("%w: a pass cannot be returned to pending", domain.ErrInvalidTransition)
	}
	id, ok = canonicalID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}

	prev, v, err := s.visitors.UpdateStatus(ctx, id, target)
	if err != nil {
		return nil, fmt.Errorf("failed to update visitor status: %w", err)
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}

	event := events.PassStatusChangedEvent{
		VisitorID: v.ID,
		From:      string(prev),
		To:        string(v.Status),
		ChangedBy: session.Username,
		ChangedAt: v.UpdatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.PassStatusChanged, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pass status event", "error", err, "visitor_id", v.ID)
	}
	logger.InfoContext(ctx, "Pass status changed", "visitor_id", v.ID, "from", prev, "to", v.Status)
	return v, nil
}

func (s *passService) List(ctx context.Context, session *auth.Session, filter domain.ListFilter, limit, offset int) ([]domain.Visitor, error) {
	if !session.Is(auth.RoleCSO) {
		return nil, domain.ErrForbidden
	}
	visitors, err := s.visitors.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	return visitors, nil
}
