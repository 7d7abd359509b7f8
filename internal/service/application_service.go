package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/validator"
)

const (
	maxApplicationList = 100
	maxCoverNoteLength = 2000
)

type SubmitApplicationInput struct {
	TenantID   string
	LandlordID string
	ListingID  string
	MoveInDate string
	CoverNote  string
}

type ApplicationService struct {
	store      repository.DocumentStore
	collection string
	notifier   NotificationCreator
	logger     *slog.Logger
}

func NewApplicationService(store repository.DocumentStore, collection string, logger *slog.Logger) *ApplicationService {
	return &ApplicationService{
		store:      store,
		collection: collection,
		logger:     logger,
	}
}

func (s *ApplicationService) SetNotifier(n NotificationCreator) {
	s.notifier = n
}

// HasActiveApplication reports whether the tenant already has a pending or
// accepted application for the listing. The answer can be stale by the time
// the caller acts on it.
func (s *ApplicationService) HasActiveApplication(ctx context.Context, tenantID, listingID string) (bool, error) {
	statuses := make([]any, len(domain.ActiveApplicationStatuses))
	for i, st := range domain.ActiveApplicationStatuses {
		statuses[i] = st
	}

	list, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: []repository.Filter{
			repository.Equal("tenant_id", tenantID),
			repository.Equal("listing_id", listingID),
			repository.In("status", statuses...),
		},
		Limit: 1,
	})
	if err != nil {
		return false, fmt.Errorf("checking active applications: %w", err)
	}
	return list.Total > 0, nil
}

// SubmitApplication creates a pending application and notifies the landlord.
// A failed notification does not fail the submission.
func (s *ApplicationService) SubmitApplication(ctx context.Context, in SubmitApplicationInput) (*domain.Application, error) {
	tenantID, err := validator.EnsureSafeID("tenant_id", in.TenantID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	landlordID, err := validator.EnsureSafeID("landlord_id", in.LandlordID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	listingID, err := validator.EnsureSafeID("listing_id", in.ListingID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if tenantID == landlordID {
		return nil, domain.Validationf("cannot apply to your own listing")
	}

	var moveIn *time.Time
	if in.MoveInDate != "" {
		t, err := parseDate(in.MoveInDate)
		if err != nil {
			return nil, domain.Validationf("move_in_date must be a date or RFC 3339 timestamp")
		}
		moveIn = &t
	}

	active, err := s.HasActiveApplication(ctx, tenantID, listingID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrDuplicateApplication
	}

	app := domain.Application{
		ListingID:        listingID,
		TenantID:         tenantID,
		LandlordID:       landlordID,
		Status:           domain.ApplicationPending,
		MoveInDate:       moveIn,
		CoverNote:        validator.SanitizeText(in.CoverNote, maxCoverNoteLength, true),
		TenantDocFileIDs: []string{},
	}
	doc, err := s.store.Create(ctx, s.collection, "", app, domain.ApplicationPermissions(tenantID, landlordID))
	if err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return nil, domain.ErrDuplicateApplication
		}
		return nil, fmt.Errorf("creating application: %w", err)
	}

	created, err := decodeDocument[domain.Application](doc)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, landlordID, domain.NotificationApplicationNew,
		"New rental application",
		"A tenant applied to one of your listings.",
		created.ID)

	return created, nil
}

func (s *ApplicationService) ListTenantApplications(ctx context.Context, tenantID string) ([]domain.Application, error) {
	return s.list(ctx, "tenant_id", tenantID)
}

func (s *ApplicationService) ListLandlordApplications(ctx context.Context, landlordID string) ([]domain.Application, error) {
	return s.list(ctx, "landlord_id", landlordID)
}

func (s *ApplicationService) list(ctx context.Context, field, userID string) ([]domain.Application, error) {
	userID, err := validator.EnsureSafeID(field, userID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}

	list, err := s.store.List(ctx, s.collection, repository.Query{
		Filters: []repository.Filter{repository.Equal(field, userID)},
		Order:   repository.OrderCreatedDesc,
		Limit:   maxApplicationList,
	})
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return decodeDocuments[domain.Application](list.Documents)
}

// WithdrawApplication withdraws a pending application. Only its tenant may.
func (s *ApplicationService) WithdrawApplication(ctx context.Context, applicationID, tenantID string) (*domain.Application, error) {
	return s.transition(ctx, applicationID, tenantID, domain.ApplicationWithdrawn)
}

// AcceptApplication accepts a pending application and notifies the tenant.
// Only the application's landlord may accept.
func (s *ApplicationService) AcceptApplication(ctx context.Context, applicationID, landlordID string) (*domain.Application, error) {
	app, err := s.transition(ctx, applicationID, landlordID, domain.ApplicationAccepted)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, app.TenantID, domain.NotificationApplicationAccepted,
		"Application accepted",
		"Your rental application was accepted.",
		app.ID)
	return app, nil
}

// RejectApplication rejects a pending application and notifies the tenant.
// Only the application's landlord may reject.
func (s *ApplicationService) RejectApplication(ctx context.Context, applicationID, landlordID string) (*domain.Application, error) {
	app, err := s.transition(ctx, applicationID, landlordID, domain.ApplicationRejected)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, app.TenantID, domain.NotificationApplicationRejected,
		"Application rejected",
		"Your rental application was not accepted.",
		app.ID)
	return app, nil
}

// transition moves a pending application to status to on behalf of
// callerID. Withdrawing belongs to the tenant, every other move to the
// landlord.
func (s *ApplicationService) transition(ctx context.Context, applicationID, callerID string, to domain.ApplicationStatus) (*domain.Application, error) {
	applicationID, err := validator.EnsureSafeID("application_id", applicationID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	callerID, err = validator.EnsureSafeID("user_id", callerID, 0)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}
	if p := repository.PrincipalFrom(ctx); !p.Privileged && p.UserID != callerID {
		return nil, domain.ErrApplicationForbidden
	}

	doc, err := s.store.Get(ctx, s.collection, applicationID)
	if err != nil {
		return nil, fmt.Errorf("getting application: %w", err)
	}
	app, err := decodeDocument[domain.Application](doc)
	if err != nil {
		return nil, err
	}

	owner := app.LandlordID
	if to == domain.ApplicationWithdrawn {
		owner = app.TenantID
	}
	if callerID != owner {
		return nil, domain.ErrApplicationForbidden
	}
	if app.Status != domain.ApplicationPending {
		return nil, domain.ErrApplicationNotPending
	}

	doc, err = s.store.Update(ctx, s.collection, applicationID, map[string]any{"status": to}, nil)
	if err != nil {
		return nil, fmt.Errorf("updating application: %w", err)
	}
	return decodeDocument[domain.Application](doc)
}

// notify sends a best-effort notification about an application. It runs
// inline; errors are logged only.
func (s *ApplicationService) notify(ctx context.Context, userID string, typ domain.NotificationType, title, body, applicationID string) {
	if s.notifier == nil {
		return
	}

	entityType := "application"
	in := CreateNotificationInput{
		UserID:     userID,
		Type:       typ,
		Title:      title,
		Body:       body,
		EntityType: &entityType,
		EntityID:   &applicationID,
	}
	if _, err := s.notifier.CreateNotification(ctx, in); err != nil {
		s.logger.Warn("Could not send application notification",
			"application_id", applicationID, "user_id", userID, "type", typ, "error", err.Error())
	}
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, v)
}
