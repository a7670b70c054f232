package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"gorm.io/datatypes"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/store"
)

func TestBuildPartitionsNonDraftApplications(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	apps := make([]database.Application, 0, 60)
	for i := 0; i < 60; i++ {
		status := domain.ApplicationStatuses[rng.Intn(len(domain.ApplicationStatuses))]
		apps = append(apps, database.Application{ID: fmt.Sprintf("app-%02d", i), Status: status})
	}

	buckets := Build(apps, nil, nil)
	if len(buckets) != len(Stages) {
		t.Fatalf("expected %d buckets got %d", len(Stages), len(buckets))
	}

	seen := map[string]int{}
	for i, bucket := range buckets {
		if bucket.Status != Stages[i].Status {
			t.Fatalf("bucket %d out of order: %s", i, bucket.Status)
		}
		prev := ""
		for _, card := range bucket.Applications {
			if card.Application.Status != bucket.Status {
				t.Fatalf("card %s with status %s in bucket %s", card.Application.ID, card.Application.Status, bucket.Status)
			}
			if card.Application.ID <= prev {
				t.Fatalf("bucket %s not in creation order", bucket.Status)
			}
			prev = card.Application.ID
			seen[card.Application.ID]++
		}
	}

	for _, app := range apps {
		want := 1
		if app.Status == domain.StatusDraft {
			want = 0
		}
		if seen[app.ID] != want {
			t.Fatalf("application %s (%s) appeared %d times", app.ID, app.Status, seen[app.ID])
		}
	}
}

func TestBuildCardStats(t *testing.T) {
	apps := []database.Application{
		{ID: "a1", ApplicantID: "p1", Status: domain.StatusUnderReview},
		{ID: "a2", ApplicantID: "p2", Status: domain.StatusUnderReview},
	}
	profiles := map[string]database.ApplicantProfile{"p1": {ID: "p1", FirstName: "Ana"}}
	reviews := map[string][]database.Review{
		"a1": {{TotalScore: 4.0}, {TotalScore: 3.0}},
	}

	bucket := Build(apps, profiles, reviews)[1]
	if len(bucket.Applications) != 2 {
		t.Fatalf("expected two cards got %d", len(bucket.Applications))
	}
	first, second := bucket.Applications[0], bucket.Applications[1]
	if first.ReviewCount != 2 || first.AverageScore == nil || *first.AverageScore != 3.5 {
		t.Fatalf("unexpected stats for a1: %+v", first)
	}
	if first.Applicant == nil || first.Applicant.FirstName != "Ana" {
		t.Fatalf("applicant not attached: %+v", first.Applicant)
	}
	if second.ReviewCount != 0 || second.AverageScore != nil || second.Applicant != nil {
		t.Fatalf("expected empty stats for a2: %+v", second)
	}
}

func TestBoardUnknownProgramIsEmpty(t *testing.T) {
	buckets, err := NewAggregator(store.NewMemory()).Board(context.Background(), "missing")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	for _, bucket := range buckets {
		if len(bucket.Applications) != 0 {
			t.Fatalf("bucket %s not empty", bucket.Status)
		}
	}
}

func TestBoardLoadsProfilesAndReviews(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	profile, err := st.Profiles().Upsert(ctx, &database.ApplicantProfile{UserID: "u1", FirstName: "Ana", LastName: "Silva"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	program := &database.Program{Name: "P", Rubric: datatypes.NewJSONType(domain.VolunteerRubric())}
	_ = st.Programs().Create(ctx, program)
	draft := &database.Application{ProgramID: program.ID, ApplicantID: profile.ID, Status: domain.StatusDraft}
	live := &database.Application{ProgramID: program.ID, ApplicantID: profile.ID, Status: domain.StatusInterview}
	_ = st.Applications().Create(ctx, draft)
	_ = st.Applications().Create(ctx, live)
	_, _ = st.Reviews().Upsert(ctx, &database.Review{ApplicationID: live.ID, ReviewerID: "r1", ProgramID: program.ID, TotalScore: 4.2})

	buckets, err := NewAggregator(st).Board(ctx, program.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	total := 0
	for _, b := range buckets {
		total += len(b.Applications)
	}
	if total != 1 {
		t.Fatalf("expected only the non-draft application, got %d", total)
	}
	card := buckets[2].Applications[0]
	if card.Application.ID != live.ID || card.ReviewCount != 1 || *card.AverageScore != 4.2 || card.Applicant.LastName != "Silva" {
		t.Fatalf("unexpected card %+v", card)
	}
}
