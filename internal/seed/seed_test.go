package seed

import (
	"context"
	"testing"

	"cohortflow/internal/access"
	"cohortflow/internal/auth"
	"cohortflow/internal/domain"
	"cohortflow/internal/portal"
	"cohortflow/internal/scoring"
	"cohortflow/internal/store"
)

func TestDemoPopulatesEveryStage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	sum, err := Demo(ctx, st, "demo-pass1", nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if sum.Skipped || sum.Users != 13 || sum.Applications != 10 || sum.Reviews != 14 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	coordinator, err := st.Users().GetByEmail(ctx, CoordinatorEmail)
	if err != nil {
		t.Fatalf("coordinator missing: %v", err)
	}
	if coordinator.Role != domain.RoleCoordinator || !auth.CheckPasswordHash("demo-pass1", coordinator.PasswordHash) {
		t.Fatalf("coordinator not usable: %+v", coordinator)
	}

	svc := portal.New(st, scoring.NewScorer(scoring.WeightsProportional))
	sess := &access.Session{UserID: coordinator.ID, Name: coordinator.Name, Role: domain.RoleCoordinator}
	stats, err := svc.GetDashboardStats(ctx, sess, portal.Empty{})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.TotalApplications != 10 || stats.Submitted != 9 || stats.UnderReview != 2 ||
		stats.Accepted != 2 || stats.TotalReviews != 14 || stats.ActivePrograms != 1 || stats.Reviewers != 2 {
		t.Fatalf("unexpected dashboard %+v", stats)
	}

	programs, err := st.Programs().List(ctx, store.ProgramFilter{Status: domain.ProgramOpen})
	if err != nil || len(programs) != 1 {
		t.Fatalf("expected one open program: %v %v", programs, err)
	}
	if err := scoring.NewScorer(scoring.WeightsStrict).ValidateRubric(programs[0].Rubric.Data()); err != nil {
		t.Fatalf("seeded rubric invalid: %v", err)
	}
}

func TestDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	if _, err := Demo(ctx, st, "demo-pass1", nil); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	sum, err := Demo(ctx, st, "demo-pass1", nil)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if !sum.Skipped {
		t.Fatalf("second seed should skip, got %+v", sum)
	}
	reviewers, _ := st.Users().ListByRole(ctx, domain.RoleReviewer)
	if len(reviewers) != 2 {
		t.Fatalf("expected 2 reviewers, got %d", len(reviewers))
	}
}

func TestDemoRejectsWeakPassword(t *testing.T) {
	if _, err := Demo(context.Background(), store.NewMemory(), "short", nil); err == nil {
		t.Fatalf("weak seed password accepted")
	}
}
