// Package portal exposes the typed procedures behind the HTTP surface.
//
// Every exported method takes (ctx, *access.Session, input) and runs its role check chain
// before touching the store; mutations append an audit entry after the write succeeds.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cohortflow/internal/access"
	"cohortflow/internal/audit"
	"cohortflow/internal/database"
	"cohortflow/internal/errcode"
	"cohortflow/internal/export"
	"cohortflow/internal/metrics"
	"cohortflow/internal/pipeline"
	"cohortflow/internal/review"
	"cohortflow/internal/scoring"
	"cohortflow/internal/store"
)

// ExportQueue hands an export off to the background worker and returns the job id.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, job ExportJobRequest) (string, error)
}

// ExportJobRequest describes an asynchronous export.
type ExportJobRequest struct {
	ProgramID     string
	RequestedBy   string
	CorrelationID string
}

// Service 聚合各领域组件，对外提供按角色守卫的过程。
type Service struct {
	store    store.Store
	scorer   scoring.Scorer
	reviews  *review.Manager
	board    *pipeline.Aggregator
	exporter *export.Collector
	audit    *audit.Recorder
	queue    ExportQueue
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises New.
type Option func(*Service)

// WithExportQueue enables RequestExportJob.
func WithExportQueue(q ExportQueue) Option {
	return func(s *Service) { s.queue = q }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source used for submittedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, scorer scoring.Scorer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		scorer:   scorer,
		reviews:  review.NewManager(st, scorer),
		board:    pipeline.NewAggregator(st),
		exporter: export.NewCollector(st),
		validate: newValidator(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewRecorder(st.AuditLogs(), s.logger)
	return s
}

// policy 给检查加上拒绝计数。
func policy(procedure string, check access.Check) access.Check {
	return func(sess *access.Session) error {
		err := check(sess)
		if err != nil {
			metrics.ObserveAccessDenied(procedure, string(errcode.KindOf(err)))
		}
		return err
	}
}

func actorOf(sess *access.Session) audit.Actor {
	return audit.Actor{ID: sess.UserID, Name: sess.Name}
}

// notFoundOr maps store.ErrNotFound to a not-found error for entity and wraps anything else as internal.
func notFoundOr(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errcode.NotFound(entity)
	}
	return errcode.NewInternal(fmt.Errorf("load %s: %w", entity, err))
}

func internal(op string, err error) error {
	return errcode.NewInternal(fmt.Errorf("%s: %w", op, err))
}

// record appends an audit entry; a failed append is logged and surfaced as internal.
func (s *Service) record(ctx context.Context, sess *access.Session, action, entityType, entityID, detail string) error {
	return s.audit.Record(ctx, actorOf(sess), action, entityType, entityID, detail)
}

// withDocuments loads the document list onto app.
func (s *Service) withDocuments(ctx context.Context, app *database.Application) error {
	docs, err := s.store.Documents().ListByApplication(ctx, app.ID)
	if err != nil {
		return internal("list documents", err)
	}
	if docs == nil {
		docs = []database.Document{}
	}
	app.Documents = docs
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
