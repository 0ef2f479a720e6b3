// Package service implements the identity reconciliation engine: matching
// federated assertions and local credentials to canonical accounts, allocating
// usernames, and linking, restoring, or creating records without violating
// email and username uniqueness.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	identitymetrics "mercato/internal/identity/metrics"
	"mercato/internal/identity/models"
	id "mercato/pkg/domain"
	"mercato/pkg/attrs"
	"mercato/pkg/platform/audit"
	"mercato/pkg/requestcontext"
)

// AccountStore is the narrow contract the engine requires from account
// persistence. Both the in-memory and the postgres store satisfy it.
type AccountStore interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindBySubjectID(ctx context.Context, provider, subjectID string) (*models.Account, error)
	UsernameTaken(ctx context.Context, username string, excludeAnonymized bool) (bool, error)
	Insert(ctx context.Context, acct *models.Account) error
	Update(ctx context.Context, acct *models.Account) error
	Execute(ctx context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error)
	ListDeletedIDs(ctx context.Context) ([]id.AccountID, error)
}

// CredentialHasher abstracts password hashing mechanics away from the core.
// pkg/secrets provides the bcrypt implementation.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// OrphanCleaner removes vendor applications whose owning account was
// anonymized. The vendorapp service implements it; the reconciler invokes it
// after restoration and opportunistically on vendor-flavored logins.
type OrphanCleaner interface {
	CleanupOrphans(ctx context.Context) ([]id.ApplicationID, error)
}

// Service is the identity reconciliation engine.
type Service struct {
	accounts       AccountStore
	hasher         CredentialHasher
	cleaner        OrphanCleaner
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *identitymetrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOrphanCleaner(cleaner OrphanCleaner) Option {
	return func(s *Service) { s.cleaner = cleaner }
}

// New constructs the identity service.
func New(accounts AccountStore, hasher CredentialHasher, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		tracer:   otel.Tracer("mercato/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetAccount looks up an account by ID.
func (s *Service) GetAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	if accountID.IsNil() {
		return nil, badRequest("account ID required")
	}
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, translateStoreErr(err, "account")
	}
	return acct, nil
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
		Email:     attrs.ExtractString(attributes, "email"),
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.ActorID(ctx).String(),
	}
	if accountID := attrs.ExtractString(attributes, "account_id"); accountID != "" {
		if parsed, err := id.ParseAccountID(accountID); err == nil {
			ev.AccountID = parsed
		}
	}
	if device := requestcontext.DeviceInfo(ctx); device.Browser != "" {
		ev.Device = device.Browser + " / " + device.OS
	}
	if err := s.auditPublisher.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err, "event", string(event))
	}
}

func (s *Service) countOutcome(outcome models.Outcome) {
	if s.metrics != nil {
		s.metrics.ReconcileOutcomes.WithLabelValues(string(outcome)).Inc()
	}
}
