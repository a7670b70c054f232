package portal

import (
	"context"
	"errors"

	"cohortflow/internal/access"
	"cohortflow/internal/audit"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/metrics"
	"cohortflow/internal/review"
	"cohortflow/internal/store"
	"cohortflow/internal/workflow"
)

type SubmitReviewInput struct {
	ApplicationID  string                `json:"application_id" validate:"required"`
	ProgramID      string                `json:"program_id" validate:"required"`
	Scores         map[string]int        `json:"scores"`
	Comments       string                `json:"comments" validate:"max=10000"`
	Recommendation domain.Recommendation `json:"recommendation" validate:"required"`
}

// QueueItem 是评审队列中的一行。
type QueueItem struct {
	Application database.Application       `json:"application"`
	Applicant   *database.ApplicantProfile `json:"applicant"`
	Program     *database.Program          `json:"program"`
	review.Summary
}

// ReviewDetail is everything a reviewer needs to score an application.
// NextStatuses 是调用者可以把申请推进到的状态，评审人为空。
type ReviewDetail struct {
	Application  database.Application       `json:"application"`
	Applicant    *database.ApplicantProfile `json:"applicant"`
	Program      *database.Program          `json:"program"`
	Reviews      []database.Review          `json:"reviews"`
	NextStatuses []domain.ApplicationStatus `json:"next_statuses"`
}

// lookups caches profile and program reads within one call.
type lookups struct {
	s        *Service
	profiles map[string]*database.ApplicantProfile
	programs map[string]*database.Program
}

func (s *Service) newLookups() *lookups {
	return &lookups{
		s:        s,
		profiles: map[string]*database.ApplicantProfile{},
		programs: map[string]*database.Program{},
	}
}

func (l *lookups) profile(ctx context.Context, id string) (*database.ApplicantProfile, error) {
	if p, ok := l.profiles[id]; ok {
		return p, nil
	}
	p, err := l.s.store.Profiles().Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("load applicant", err)
	}
	l.profiles[id] = p
	return p, nil
}

func (l *lookups) program(ctx context.Context, id string) (*database.Program, error) {
	if p, ok := l.programs[id]; ok {
		return p, nil
	}
	p, err := l.s.store.Programs().Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, internal("load program", err)
	}
	l.programs[id] = p
	return p, nil
}

// ListReviewQueue lists submitted and under-review applications with their review stats.
func (s *Service) ListReviewQueue(ctx context.Context, sess *access.Session, in Empty) ([]QueueItem, error) {
	return access.Wrap(s.listReviewQueue, policy("listReviewQueue", access.ReviewerOrCoordinator))(ctx, sess, in)
}

func (s *Service) listReviewQueue(ctx context.Context, _ *access.Session, _ Empty) ([]QueueItem, error) {
	apps, err := s.store.Applications().List(ctx, store.ApplicationFilter{Statuses: review.QueueStatuses})
	if err != nil {
		return nil, internal("list queue", err)
	}
	l := s.newLookups()
	items := make([]QueueItem, 0, len(apps))
	for _, app := range apps {
		applicant, err := l.profile(ctx, app.ApplicantID)
		if err != nil {
			return nil, err
		}
		program, err := l.program(ctx, app.ProgramID)
		if err != nil {
			return nil, err
		}
		summary, err := s.reviews.SummaryFor(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, QueueItem{Application: app, Applicant: applicant, Program: program, Summary: summary})
	}
	return items, nil
}

func (s *Service) GetApplicationForReview(ctx context.Context, sess *access.Session, in ApplicationRef) (*ReviewDetail, error) {
	return access.Wrap(s.getApplicationForReview, policy("getApplicationForReview", access.ReviewerOrCoordinator))(ctx, sess, in)
}

func (s *Service) getApplicationForReview(ctx context.Context, sess *access.Session, in ApplicationRef) (*ReviewDetail, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	app, err := s.store.Applications().Get(ctx, in.ApplicationID)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	if app.Status.Private() {
		return nil, errcode.NotFound("application")
	}
	if err := s.withDocuments(ctx, app); err != nil {
		return nil, err
	}
	l := s.newLookups()
	applicant, err := l.profile(ctx, app.ApplicantID)
	if err != nil {
		return nil, err
	}
	program, err := l.program(ctx, app.ProgramID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.store.Reviews().ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, internal("list reviews", err)
	}
	if reviews == nil {
		reviews = []database.Review{}
	}
	next := workflow.Allowed(app.Status, sess.Role)
	if next == nil {
		next = []domain.ApplicationStatus{}
	}
	return &ReviewDetail{
		Application:  *app,
		Applicant:    applicant,
		Program:      program,
		Reviews:      reviews,
		NextStatuses: next,
	}, nil
}

// GetMyReview returns the caller's review of an application, or nil.
func (s *Service) GetMyReview(ctx context.Context, sess *access.Session, in ApplicationRef) (*database.Review, error) {
	return access.Wrap(s.getMyReview, policy("getMyReview", access.ReviewerOrCoordinator))(ctx, sess, in)
}

func (s *Service) getMyReview(ctx context.Context, sess *access.Session, in ApplicationRef) (*database.Review, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	return s.reviews.ReviewFor(ctx, in.ApplicationID, sess.UserID)
}

// SubmitReview scores and stores the caller's review; resubmitting replaces it.
func (s *Service) SubmitReview(ctx context.Context, sess *access.Session, in SubmitReviewInput) (*database.Review, error) {
	return access.Wrap(s.submitReview, policy("submitReview", access.ReviewerOrCoordinator))(ctx, sess, in)
}

func (s *Service) submitReview(ctx context.Context, sess *access.Session, in SubmitReviewInput) (*database.Review, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	saved, err := s.reviews.Submit(ctx, review.Submission{
		ApplicationID:  in.ApplicationID,
		ProgramID:      in.ProgramID,
		ReviewerID:     sess.UserID,
		Scores:         in.Scores,
		Comments:       in.Comments,
		Recommendation: in.Recommendation,
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveReviewSubmitted(string(saved.Recommendation))
	detail := "Submitted review with recommendation " + string(saved.Recommendation)
	if err := s.record(ctx, sess, audit.ActionSubmitReview, audit.EntityReview, saved.ID, detail); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) GetReviewerStats(ctx context.Context, sess *access.Session, in Empty) (review.ReviewerStats, error) {
	return access.Wrap(s.getReviewerStats, policy("getReviewerStats", access.ReviewerOrCoordinator))(ctx, sess, in)
}

func (s *Service) getReviewerStats(ctx context.Context, sess *access.Session, _ Empty) (review.ReviewerStats, error) {
	return s.reviews.StatsFor(ctx, sess.UserID)
}
