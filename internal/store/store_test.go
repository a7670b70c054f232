package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func tickingClock() func() time.Time {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

// forEachStore runs fn against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(WithClock(tickingClock())))
	})
	t.Run("gorm", func(t *testing.T) {
		fn(t, NewGorm(newTestDB(t)))
	})
}

func seedApplication(t *testing.T, s Store) (*database.Program, *database.Application) {
	t.Helper()
	ctx := context.Background()

	program := &database.Program{
		Name:         "Spring Volunteers",
		Status:       domain.ProgramOpen,
		Capacity:     10,
		Requirements: datatypes.JSONSlice[string]{"Background check"},
		Rubric:       datatypes.NewJSONType(domain.VolunteerRubric()),
		CreatorID:    "4c0d6b6e-0000-0000-0000-000000000001",
	}
	if err := s.Programs().Create(ctx, program); err != nil {
		t.Fatalf("create program: %v", err)
	}
	app := &database.Application{
		ProgramID:   program.ID,
		ApplicantID: "4c0d6b6e-0000-0000-0000-000000000002",
		Status:      domain.StatusDraft,
		Responses:   datatypes.NewJSONType(map[string]string{"motivation": "help out"}),
	}
	if err := s.Applications().Create(ctx, app); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return program, app
}

func TestUsersRejectDuplicateEmail(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := &database.User{Email: "ana@example.org", Name: "Ana", Role: domain.RoleApplicant}
		if err := s.Users().Create(ctx, first); err != nil {
			t.Fatalf("create: %v", err)
		}
		if first.ID == "" {
			t.Fatalf("expected id to be assigned")
		}
		dup := &database.User{Email: "ana@example.org", Name: "Other", Role: domain.RoleReviewer}
		if err := s.Users().Create(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict got %v", err)
		}

		got, err := s.Users().GetByEmail(ctx, "ANA@example.org")
		if err != nil || got.ID != first.ID {
			t.Fatalf("lookup by email failed: %v %+v", err, got)
		}
		if _, err := s.Users().Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found got %v", err)
		}
	})
}

func TestProfileUpsertKeepsIdentity(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		userID := "4c0d6b6e-0000-0000-0000-0000000000aa"

		if _, err := s.Profiles().GetByUser(ctx, userID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected no profile yet, got %v", err)
		}

		created, err := s.Profiles().Upsert(ctx, &database.ApplicantProfile{UserID: userID, FirstName: "Ana", City: "Lisbon"})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		updated, err := s.Profiles().Upsert(ctx, &database.ApplicantProfile{
			UserID:           userID,
			FirstName:        "Ana",
			City:             "Porto",
			EmergencyContact: domain.EmergencyContact{Name: "Rui", Relationship: "Brother", Phone: "555"},
		})
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if updated.ID != created.ID {
			t.Fatalf("profile id changed: %s -> %s", created.ID, updated.ID)
		}
		if updated.City != "Porto" || updated.EmergencyContact.Name != "Rui" {
			t.Fatalf("fields not overwritten: %+v", updated)
		}
	})
}

func TestApplicationUpdateAdvancesTimestamp(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, app := seedApplication(t, s)
		before := app.UpdatedAt

		now := time.Now().UTC()
		app.Status = domain.StatusSubmitted
		app.SubmittedAt = &now
		if err := s.Applications().Update(ctx, app); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := s.Applications().Get(ctx, app.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.StatusSubmitted || got.SubmittedAt == nil {
			t.Fatalf("update not persisted: %+v", got)
		}
		if got.UpdatedAt.Before(before) {
			t.Fatalf("updatedAt went backwards: %v < %v", got.UpdatedAt, before)
		}
		if got.Responses.Data()["motivation"] != "help out" {
			t.Fatalf("responses lost: %v", got.Responses.Data())
		}
	})
}

func TestApplicationListFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		program, app := seedApplication(t, s)

		other := &database.Application{ProgramID: program.ID, ApplicantID: "4c0d6b6e-0000-0000-0000-000000000003", Status: domain.StatusSubmitted}
		if err := s.Applications().Create(ctx, other); err != nil {
			t.Fatalf("create: %v", err)
		}

		all, err := s.Applications().List(ctx, ApplicationFilter{ProgramID: program.ID})
		if err != nil || len(all) != 2 {
			t.Fatalf("expected 2 applications got %d (%v)", len(all), err)
		}
		submitted, _ := s.Applications().List(ctx, ApplicationFilter{Statuses: []domain.ApplicationStatus{domain.StatusSubmitted}})
		if len(submitted) != 1 || submitted[0].ID != other.ID {
			t.Fatalf("status filter returned %+v", submitted)
		}
		mine, _ := s.Applications().List(ctx, ApplicationFilter{ApplicantID: app.ApplicantID})
		if len(mine) != 1 || mine[0].ID != app.ID {
			t.Fatalf("applicant filter returned %+v", mine)
		}
	})
}

func TestReviewUpsertReplacesInPlace(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		program, app := seedApplication(t, s)
		reviewerID := "4c0d6b6e-0000-0000-0000-0000000000bb"

		first, err := s.Reviews().Upsert(ctx, &database.Review{
			ApplicationID:  app.ID,
			ReviewerID:     reviewerID,
			ProgramID:      program.ID,
			Scores:         datatypes.NewJSONType(map[string]int{"criterion-1": 3}),
			TotalScore:     0.8,
			Recommendation: domain.RecommendWaitlist,
			SubmittedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("first upsert: %v", err)
		}

		second, err := s.Reviews().Upsert(ctx, &database.Review{
			ApplicationID:  app.ID,
			ReviewerID:     reviewerID,
			ProgramID:      program.ID,
			Scores:         datatypes.NewJSONType(map[string]int{"criterion-1": 5}),
			TotalScore:     1.3,
			Comments:       "changed my mind",
			Recommendation: domain.RecommendAccept,
			SubmittedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}

		if second.ID != first.ID {
			t.Fatalf("review id changed: %s -> %s", first.ID, second.ID)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Fatalf("createdAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
		}
		if second.TotalScore != 1.3 || second.Recommendation != domain.RecommendAccept || second.Comments != "changed my mind" {
			t.Fatalf("fields not replaced: %+v", second)
		}

		reviews, err := s.Reviews().ListByApplication(ctx, app.ID)
		if err != nil || len(reviews) != 1 {
			t.Fatalf("expected exactly one review, got %d (%v)", len(reviews), err)
		}
	})
}

func TestDocumentRequiresApplication(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, app := seedApplication(t, s)

		doc := &database.Document{ApplicationID: app.ID, Name: "cv.pdf", MediaType: "application/pdf", Size: 42, ObjectKey: "documents/x/cv.pdf"}
		if err := s.Documents().Create(ctx, doc); err != nil {
			t.Fatalf("create: %v", err)
		}
		orphan := &database.Document{ApplicationID: "4c0d6b6e-0000-0000-0000-0000000000ff", Name: "x.pdf"}
		if err := s.Documents().Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found for orphan document got %v", err)
		}

		docs, _ := s.Documents().ListByApplication(ctx, app.ID)
		if len(docs) != 1 || docs[0].ID != doc.ID {
			t.Fatalf("unexpected documents %+v", docs)
		}
	})
}

func TestAuditListNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			entry := &database.AuditLog{
				ActorID:    "4c0d6b6e-0000-0000-0000-0000000000cc",
				ActorName:  "Coordinator",
				Action:     "update_status",
				EntityType: "application",
				EntityID:   fmt.Sprintf("app-%d", i),
				Detail:     fmt.Sprintf("entry %d", i),
			}
			if err := s.AuditLogs().Append(ctx, entry); err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		page, total, err := s.AuditLogs().List(ctx, 2, 1)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 5 {
			t.Fatalf("expected total 5 got %d", total)
		}
		if len(page) != 2 || page[0].Detail != "entry 3" || page[1].Detail != "entry 2" {
			t.Fatalf("unexpected page %+v", page)
		}
	})
}

// 时间戳完全相同时，gorm 仍须按插入顺序返回。
func TestGormOrderingWithTimestampTies(t *testing.T) {
	ctx := context.Background()
	s := NewGorm(newTestDB(t))
	program, _ := seedApplication(t, s)
	stamp := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var appIDs, auditIDs []string
	for i := 0; i < 20; i++ {
		app := &database.Application{
			ProgramID:   program.ID,
			ApplicantID: fmt.Sprintf("4c0d6b6e-0000-0000-0000-0000000001%02d", i),
			Status:      domain.StatusSubmitted,
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		}
		if err := s.Applications().Create(ctx, app); err != nil {
			t.Fatalf("create application: %v", err)
		}
		appIDs = append(appIDs, app.ID)

		entry := &database.AuditLog{ActorID: "a", ActorName: "A", Action: "x", EntityType: "application", EntityID: app.ID, CreatedAt: stamp}
		if err := s.AuditLogs().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
		auditIDs = append(auditIDs, entry.ID)
	}

	apps, err := s.Applications().List(ctx, ApplicationFilter{Statuses: []domain.ApplicationStatus{domain.StatusSubmitted}})
	if err != nil || len(apps) != len(appIDs) {
		t.Fatalf("list applications: %d %v", len(apps), err)
	}
	for i, app := range apps {
		if app.ID != appIDs[i] {
			t.Fatalf("application %d out of order: got %s want %s", i, app.ID, appIDs[i])
		}
	}

	entries, _, err := s.AuditLogs().List(ctx, len(auditIDs), 0)
	if err != nil || len(entries) != len(auditIDs) {
		t.Fatalf("list audit: %d %v", len(entries), err)
	}
	for i, entry := range entries {
		if want := auditIDs[len(auditIDs)-1-i]; entry.ID != want {
			t.Fatalf("audit entry %d out of order: got %s want %s", i, entry.ID, want)
		}
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	_, app := seedApplication(t, s)

	got, _ := s.Applications().Get(context.Background(), app.ID)
	got.Responses.Data()["motivation"] = "mutated"
	got.Status = domain.StatusAccepted

	again, _ := s.Applications().Get(context.Background(), app.ID)
	if again.Status != domain.StatusDraft || again.Responses.Data()["motivation"] != "help out" {
		t.Fatalf("stored state leaked through returned copy: %+v", again)
	}
}
