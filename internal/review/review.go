// Package review stores one scored review per (application, reviewer) pair.
package review

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"gorm.io/datatypes"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/scoring"
	"cohortflow/internal/store"
)

// Submission is a reviewer's scored opinion on one application.
type Submission struct {
	ApplicationID  string
	ProgramID      string
	ReviewerID     string
	Scores         map[string]int
	Comments       string
	Recommendation domain.Recommendation
}

// Manager 负责评审记录的校验、计分与幂等写入；不会改变申请状态。
type Manager struct {
	store  store.Store
	scorer scoring.Scorer
	now    func() time.Time
}

func NewManager(st store.Store, scorer scoring.Scorer) *Manager {
	return &Manager{
		store:  st,
		scorer: scorer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit 计算总分并以 (ApplicationID, ReviewerID) 为键写入；重复提交覆盖原记录但保留 ID 与 CreatedAt。
func (m *Manager) Submit(ctx context.Context, sub Submission) (*database.Review, error) {
	program, err := m.store.Programs().Get(ctx, sub.ProgramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.NotFound("program")
		}
		return nil, errcode.NewInternal(fmt.Errorf("load program: %w", err))
	}

	app, err := m.store.Applications().Get(ctx, sub.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.NotFound("application")
		}
		return nil, errcode.NewInternal(fmt.Errorf("load application: %w", err))
	}
	// 草稿对评审不可见。
	if app.Status.Private() {
		return nil, errcode.NotFound("application")
	}
	if app.ProgramID != program.ID {
		return nil, errcode.NewValidation("application does not belong to program")
	}

	if !sub.Recommendation.Valid() {
		return nil, errcode.NewValidationf("unknown recommendation %q", sub.Recommendation)
	}
	rubric := program.Rubric.Data()
	if err := scoring.ValidateScores(rubric, sub.Scores); err != nil {
		return nil, err
	}
	total, err := m.scorer.Score(rubric, sub.Scores)
	if err != nil {
		return nil, err
	}

	saved, err := m.store.Reviews().Upsert(ctx, &database.Review{
		ApplicationID:  app.ID,
		ProgramID:      program.ID,
		ReviewerID:     sub.ReviewerID,
		Scores:         datatypes.NewJSONType(maps.Clone(sub.Scores)),
		TotalScore:     total,
		Comments:       sub.Comments,
		Recommendation: sub.Recommendation,
		SubmittedAt:    m.now(),
	})
	if err != nil {
		return nil, errcode.NewInternal(fmt.Errorf("upsert review: %w", err))
	}
	return saved, nil
}

// ReviewFor returns the reviewer's review of the application, or nil when there is none.
func (m *Manager) ReviewFor(ctx context.Context, applicationID, reviewerID string) (*database.Review, error) {
	r, err := m.store.Reviews().Get(ctx, applicationID, reviewerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errcode.NewInternal(fmt.Errorf("load review: %w", err))
	}
	return r, nil
}

// Summary 汇总一组评审：条数与平均总分（无评审时为 nil）。
type Summary struct {
	Count        int      `json:"review_count"`
	AverageScore *float64 `json:"average_score"`
}

func Summarize(reviews []database.Review) Summary {
	if len(reviews) == 0 {
		return Summary{}
	}
	sum := 0.0
	for _, r := range reviews {
		sum += r.TotalScore
	}
	avg := sum / float64(len(reviews))
	return Summary{Count: len(reviews), AverageScore: &avg}
}

// SummaryFor loads and summarizes every review of one application.
func (m *Manager) SummaryFor(ctx context.Context, applicationID string) (Summary, error) {
	reviews, err := m.store.Reviews().ListByApplication(ctx, applicationID)
	if err != nil {
		return Summary{}, errcode.NewInternal(fmt.Errorf("list reviews: %w", err))
	}
	return Summarize(reviews), nil
}

// ReviewerStats 是单个评审人的工作量概览。
type ReviewerStats struct {
	Completed    int     `json:"completed"`
	Pending      int     `json:"pending"`
	AverageScore float64 `json:"average_score"`
}

// QueueStatuses are the application statuses that wait for reviews.
var QueueStatuses = []domain.ApplicationStatus{domain.StatusSubmitted, domain.StatusUnderReview}

// StatsFor counts the reviewer's completed reviews and the queued applications they have not reviewed yet.
func (m *Manager) StatsFor(ctx context.Context, reviewerID string) (ReviewerStats, error) {
	mine, err := m.store.Reviews().ListByReviewer(ctx, reviewerID)
	if err != nil {
		return ReviewerStats{}, errcode.NewInternal(fmt.Errorf("list reviews: %w", err))
	}
	queued, err := m.store.Applications().List(ctx, store.ApplicationFilter{Statuses: QueueStatuses})
	if err != nil {
		return ReviewerStats{}, errcode.NewInternal(fmt.Errorf("list queue: %w", err))
	}

	reviewed := make(map[string]struct{}, len(mine))
	sum := 0.0
	for _, r := range mine {
		reviewed[r.ApplicationID] = struct{}{}
		sum += r.TotalScore
	}
	stats := ReviewerStats{Completed: len(mine)}
	for _, app := range queued {
		if _, ok := reviewed[app.ID]; !ok {
			stats.Pending++
		}
	}
	if len(mine) > 0 {
		stats.AverageScore = sum / float64(len(mine))
	}
	return stats, nil
}
