// Package pipeline groups a program's non-draft applications into status buckets.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/review"
	"cohortflow/internal/store"
)

// Stage is one pipeline column.
type Stage struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Status domain.ApplicationStatus `json:"status"`
}

// Stages 固定顺序；draft 不进入流水线。
var Stages = []Stage{
	{ID: "submitted", Name: "Submitted", Status: domain.StatusSubmitted},
	{ID: "under_review", Name: "Under Review", Status: domain.StatusUnderReview},
	{ID: "interview", Name: "Interview", Status: domain.StatusInterview},
	{ID: "accepted", Name: "Accepted", Status: domain.StatusAccepted},
	{ID: "rejected", Name: "Rejected", Status: domain.StatusRejected},
	{ID: "waitlisted", Name: "Waitlisted", Status: domain.StatusWaitlisted},
}

// Card is an application as shown on the board.
type Card struct {
	Application  database.Application       `json:"application"`
	Applicant    *database.ApplicantProfile `json:"applicant"`
	ReviewCount  int                        `json:"review_count"`
	AverageScore *float64                   `json:"average_score"`
}

// Bucket holds the cards of one stage in creation order.
type Bucket struct {
	Stage
	Applications []Card `json:"applications"`
}

// Build partitions apps into Stages. profiles is keyed by profile ID and reviews by application ID.
// Applications in a status without a stage (draft) are left out.
func Build(apps []database.Application, profiles map[string]database.ApplicantProfile, reviews map[string][]database.Review) []Bucket {
	buckets := make([]Bucket, len(Stages))
	index := make(map[domain.ApplicationStatus]int, len(Stages))
	for i, stage := range Stages {
		buckets[i] = Bucket{Stage: stage, Applications: []Card{}}
		index[stage.Status] = i
	}

	for _, app := range apps {
		i, ok := index[app.Status]
		if !ok {
			continue
		}
		summary := review.Summarize(reviews[app.ID])
		card := Card{
			Application:  app,
			ReviewCount:  summary.Count,
			AverageScore: summary.AverageScore,
		}
		if profile, ok := profiles[app.ApplicantID]; ok {
			card.Applicant = &profile
		}
		buckets[i].Applications = append(buckets[i].Applications, card)
	}
	return buckets
}

// Aggregator loads a program's applications and builds its board.
type Aggregator struct {
	store store.Store
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Board 只读；未知项目返回全部为空的桶。
func (a *Aggregator) Board(ctx context.Context, programID string) ([]Bucket, error) {
	apps, err := a.store.Applications().List(ctx, store.ApplicationFilter{ProgramID: programID})
	if err != nil {
		return nil, errcode.NewInternal(fmt.Errorf("list applications: %w", err))
	}

	profiles := make(map[string]database.ApplicantProfile)
	reviews := make(map[string][]database.Review)
	for _, app := range apps {
		if app.Status == domain.StatusDraft {
			continue
		}
		if _, seen := profiles[app.ApplicantID]; !seen {
			profile, err := a.store.Profiles().Get(ctx, app.ApplicantID)
			switch {
			case err == nil:
				profiles[app.ApplicantID] = *profile
			case !errors.Is(err, store.ErrNotFound):
				return nil, errcode.NewInternal(fmt.Errorf("load applicant %s: %w", app.ApplicantID, err))
			}
		}
		rs, err := a.store.Reviews().ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, errcode.NewInternal(fmt.Errorf("list reviews: %w", err))
		}
		reviews[app.ID] = rs
	}
	return Build(apps, profiles, reviews), nil
}
