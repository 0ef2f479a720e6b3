// Package service implements the vendor application lifecycle controller and
// the orphan cleaner. The state machine lives in the models package as a
// transition table; this package applies it through the store's
// read-then-conditional-write Execute, so a stale client can never push an
// application over a state it no longer reflects.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	identitymodels "mercato/internal/identity/models"
	vendormetrics "mercato/internal/vendorapp/metrics"
	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
	"mercato/pkg/attrs"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/platform/audit"
	"mercato/pkg/platform/sentinel"
	txcontext "mercato/pkg/platform/tx"
	"mercato/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks OrderLister,DocumentStore

// ApplicationStore is the narrow persistence contract for applications.
type ApplicationStore interface {
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.VendorApplication, error)
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.VendorApplication, error)
	Insert(ctx context.Context, app *models.VendorApplication) error
	Update(ctx context.Context, app *models.VendorApplication) error
	Delete(ctx context.Context, appID id.ApplicationID) error
	Execute(ctx context.Context, appID id.ApplicationID, validate func(*models.VendorApplication) error, mutate func(*models.VendorApplication)) (*models.VendorApplication, error)
	ListByAccountIDs(ctx context.Context, accountIDs []id.AccountID) ([]*models.VendorApplication, error)
}

// AccountDirectory is the slice of the account store this controller needs:
// reading owners, applying role changes, and scanning for anonymized owners.
type AccountDirectory interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*identitymodels.Account, error)
	Execute(ctx context.Context, accountID id.AccountID, validate func(*identitymodels.Account) error, mutate func(*identitymodels.Account)) (*identitymodels.Account, error)
	ListDeletedIDs(ctx context.Context) ([]id.AccountID, error)
}

// OrderLister is the order-status collaborator. It returns opaque summaries
// of orders that were in a non-terminal status; the controller only returns
// them for the caller to display and acknowledge.
type OrderLister interface {
	InFlightByAccount(ctx context.Context, accountID id.AccountID) ([]models.OrderSummary, error)
}

// DocumentStore is the upload collaborator. The core stores whatever opaque
// reference it returns and never interprets file content.
type DocumentStore interface {
	Save(ctx context.Context, accountID id.AccountID, filename string, content []byte) (models.DocumentRef, error)
}

// Service drives vendor applications through their lifecycle.
type Service struct {
	applications   ApplicationStore
	accounts       AccountDirectory
	orders         OrderLister
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *vendormetrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *vendormetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner makes decisions that touch both the application and the
// owning account (approve, reject, reapply) run as one atomic unit.
func WithTxRunner(r txcontext.Runner) Option {
	return func(s *Service) { s.tx = r }
}

// New constructs the vendor application service.
func New(applications ApplicationStore, accounts AccountDirectory, orders OrderLister, opts ...Option) *Service {
	s := &Service{
		applications: applications,
		accounts:     accounts,
		orders:       orders,
		tracer:       otel.Tracer("mercato/vendorapp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tx == nil {
		s.tx = txcontext.Passthrough{}
	}
	return s
}

// GetForAccount returns the account's application, if any.
func (s *Service) GetForAccount(ctx context.Context, accountID id.AccountID) (*models.VendorApplication, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "account ID required")
	}
	app, err := s.applications.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, translateStoreErr(err, "application")
	}
	return app, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	args := append(attributes, "event", string(event), "log_type", "audit")
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPublisher == nil {
		return
	}
	ev := audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(event),
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.ActorID(ctx).String(),
	}
	if accountID := attrs.ExtractString(attributes, "account_id"); accountID != "" {
		if parsed, err := id.ParseAccountID(accountID); err == nil {
			ev.AccountID = parsed
		}
	}
	if err := s.auditPublisher.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err, "event", string(event))
	}
}

func (s *Service) countTransition(kind string) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(kind).Inc()
	}
}

func (s *Service) countIllegal() {
	if s.metrics != nil {
		s.metrics.IllegalAttempts.Inc()
	}
}

func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" conflicts with an existing record")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "application store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "application store failure")
	}
}
