// Package seed loads a small demo data set: staff accounts, one open volunteer program,
// applicants in every pipeline stage and a handful of reviews.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"cohortflow/internal/audit"
	"cohortflow/internal/auth"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/scoring"
	"cohortflow/internal/store"
)

const (
	CoordinatorEmail = "coordinator@cohortflow.org"
	ProgramName      = "Community Health Volunteer Program 2026"
)

var staff = []struct {
	email, name string
	role domain.Role
}{
	{CoordinatorEmail, "Sarah Johnson", domain.RoleCoordinator},
	{"reviewer1@cohortflow.org", "Dr. Michael Chen", domain.RoleReviewer},
	{"reviewer2@cohortflow.org", "Dr. Emily Rodriguez", domain.RoleReviewer},
}

// 每个申请人对应一个流水线状态；submitted 之后的状态都带两份评审。
var applicants = []struct {
	first, last, city, state string
	status domain.ApplicationStatus
}{
	{"Emma", "Smith", "Springfield", "CA", domain.StatusSubmitted},
	{"Liam", "Garcia", "Riverside", "NY", domain.StatusUnderReview},
	{"Olivia", "Brown", "Fairview", "TX", domain.StatusUnderReview},
	{"Noah", "Martinez", "Georgetown", "FL", domain.StatusInterview},
	{"Ava", "Wilson", "Madison", "IL", domain.StatusAccepted},
	{"Ethan", "Taylor", "Springfield", "CA", domain.StatusAccepted},
	{"Sophia", "Moore", "Riverside", "NY", domain.StatusRejected},
	{"Mason", "Jackson", "Fairview", "TX", domain.StatusWaitlisted},
	{"Isabella", "Lopez", "Georgetown", "FL", domain.StatusDraft},
	{"Lucas", "Anderson", "Madison", "IL", domain.StatusSubmitted},
}

// 两位评审人的固定打分，按申请序号轮换。
var scoreSheets = []map[string]int{
	{"criterion-1": 5, "criterion-2": 4, "criterion-3": 4, "criterion-4": 5, "criterion-5": 3},
	{"criterion-1": 3, "criterion-2": 4, "criterion-3": 3, "criterion-4": 3, "criterion-5": 2},
	{"criterion-1": 4, "criterion-2": 5, "criterion-3": 4, "criterion-4": 4, "criterion-5": 5},
}

var comments = []string{
	"Strong candidate with relevant experience and excellent communication skills.",
	"Good motivation but limited availability may be a concern.",
	"Impressive background in community service. Would be a great addition to the team.",
}

// Summary reports what Demo created.
type Summary struct {
	Skipped      bool
	Users        int
	Applications int
	Reviews      int
}

// Demo 写入演示数据；协调员账号已存在时视为已初始化，直接跳过。
// 所有账号共用 password。
func Demo(ctx context.Context, st store.Store, password string, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := auth.ValidatePasswordStrength(password); err != nil {
		return Summary{}, fmt.Errorf("seed password: %w", err)
	}

	if _, err := st.Users().GetByEmail(ctx, CoordinatorEmail); err == nil {
		logger.InfoContext(ctx, "demo data already present, skipping seed")
		return Summary{Skipped: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Summary{}, fmt.Errorf("look up coordinator: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	recorder := audit.NewRecorder(st.AuditLogs(), logger)

	var coordinator database.User
	var reviewers []database.User
	for _, s := range staff {
		user := database.User{Email: s.email, Name: s.name, Role: s.role, PasswordHash: hash}
		if err := st.Users().Create(ctx, &user); err != nil {
			return sum, fmt.Errorf("create %s: %w", s.email, err)
		}
		sum.Users++
		if s.role == domain.RoleCoordinator {
			coordinator = user
		} else {
			reviewers = append(reviewers, user)
		}
	}

	program, err := createProgram(ctx, st, coordinator.ID)
	if err != nil {
		return sum, err
	}
	coordinatorActor := audit.Actor{ID: coordinator.ID, Name: coordinator.Name}
	if err := recorder.Record(ctx, coordinatorActor, audit.ActionCreateProgram, audit.EntityProgram, program.ID,
		fmt.Sprintf("Created program %q", program.Name)); err != nil {
		return sum, err
	}

	rubric := program.Rubric.Data()
	for i, a := range applicants {
		user := database.User{
			Email:        fmt.Sprintf("%s.%s@example.com", strings.ToLower(a.first), strings.ToLower(a.last)),
			Name:         a.first + " " + a.last,
			Role:         domain.RoleApplicant,
			PasswordHash: hash,
		}
		if err := st.Users().Create(ctx, &user); err != nil {
			return sum, fmt.Errorf("create applicant %s: %w", user.Email, err)
		}
		sum.Users++

		profile, err := st.Profiles().Upsert(ctx, &database.ApplicantProfile{
			UserID:      user.ID,
			FirstName:   a.first,
			LastName:    a.last,
			Email:       user.Email,
			Phone:       fmt.Sprintf("(555) %03d-%04d", 200+i*7, 1000+i*131),
			DateOfBirth: fmt.Sprintf("19%02d-%02d-%02d", 80+i, i%12+1, i*2+1),
			Address:     fmt.Sprintf("%d Oak St", 100+i*11),
			City:        a.city,
			State:       a.state,
			ZipCode:     fmt.Sprintf("%05d", 10001+i*1234),
			EmergencyContact: domain.EmergencyContact{
				Name:         "Jordan " + a.last,
				Relationship: "Parent",
				Phone:        "(555) 010-0000",
			},
		})
		if err != nil {
			return sum, fmt.Errorf("create profile for %s: %w", user.Email, err)
		}

		app := database.Application{
			ProgramID:   program.ID,
			ApplicantID: profile.ID,
			Status:      a.status,
			Responses:   datatypes.NewJSONType(responsesFor(a.first, a.status)),
		}
		if a.status != domain.StatusDraft {
			submitted := time.Now().UTC().Add(-time.Duration(len(applicants)-i) * 24 * time.Hour)
			app.SubmittedAt = &submitted
		}
		if err := st.Applications().Create(ctx, &app); err != nil {
			return sum, fmt.Errorf("create application for %s: %w", user.Email, err)
		}
		sum.Applications++

		if a.status == domain.StatusDraft {
			continue
		}
		applicantActor := audit.Actor{ID: user.ID, Name: user.Name}
		if err := recorder.Record(ctx, applicantActor, audit.ActionSubmitApplication, audit.EntityApplication, app.ID,
			"Submitted application"); err != nil {
			return sum, err
		}
		if a.status == domain.StatusSubmitted {
			continue
		}

		for j, reviewer := range reviewers {
			scores := scoreSheets[(i+j)%len(scoreSheets)]
			rev, err := st.Reviews().Upsert(ctx, &database.Review{
				ApplicationID:  app.ID,
				ReviewerID:     reviewer.ID,
				ProgramID:      program.ID,
				Scores:         datatypes.NewJSONType(scores),
				TotalScore:     scoring.Total(rubric, scores),
				Comments:       comments[(i+j)%len(comments)],
				Recommendation: recommendationFor(a.status),
				SubmittedAt:    time.Now().UTC(),
			})
			if err != nil {
				return sum, fmt.Errorf("create review: %w", err)
			}
			sum.Reviews++
			reviewerActor := audit.Actor{ID: reviewer.ID, Name: reviewer.Name}
			if err := recorder.Record(ctx, reviewerActor, audit.ActionSubmitReview, audit.EntityReview, rev.ID,
				fmt.Sprintf("Submitted review for application %s", app.ID)); err != nil {
				return sum, err
			}
		}

		if a.status.Terminal() || a.status == domain.StatusInterview {
			if err := recorder.Record(ctx, coordinatorActor, audit.ActionUpdateStatus, audit.EntityApplication, app.ID,
				audit.StatusChangeDetail(string(domain.StatusUnderReview), string(a.status))); err != nil {
				return sum, err
			}
		}
	}

	logger.InfoContext(ctx, "demo data seeded",
		slog.Int("users", sum.Users),
		slog.Int("applications", sum.Applications),
		slog.Int("reviews", sum.Reviews),
		slog.String("coordinator", CoordinatorEmail),
	)
	return sum, nil
}

func createProgram(ctx context.Context, st store.Store, creatorID string) (*database.Program, error) {
	now := time.Now().UTC()
	program := &database.Program{
		Name: ProgramName,
		Description: "Join our team of dedicated volunteers making a difference in community health. " +
			"This program connects passionate individuals with opportunities to support patients, families, and healthcare staff.",
		StartDate:           now.AddDate(0, 2, 0),
		EndDate:             now.AddDate(1, 2, 0),
		ApplicationDeadline: now.AddDate(0, 1, 0),
		Capacity:            25,
		Requirements: datatypes.JSONSlice[string]{
			"Must be 18 years or older",
			"Background check authorization",
			"Commit to at least 4 hours per week",
		},
		Rubric:    datatypes.NewJSONType(domain.VolunteerRubric()),
		Status:    domain.ProgramOpen,
		CreatorID: creatorID,
	}
	if err := st.Programs().Create(ctx, program); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}

func responsesFor(first string, status domain.ApplicationStatus) map[string]string {
	responses := map[string]string{
		"availability": "Weekends",
		"skills":       "Patient Care, Translation",
	}
	if status == domain.StatusDraft {
		return responses
	}
	responses["experience"] = "I have volunteered at local hospitals and community centers, " +
		"including patient companionship, administrative support, and event coordination."
	responses["motivation"] = fmt.Sprintf("%s wants to give back to the community and believes everyone deserves compassionate care.", first)
	return responses
}

func recommendationFor(status domain.ApplicationStatus) domain.Recommendation {
	switch status {
	case domain.StatusAccepted:
		return domain.RecommendAccept
	case domain.StatusRejected:
		return domain.RecommendReject
	case domain.StatusWaitlisted:
		return domain.RecommendWaitlist
	default:
		return domain.RecommendInterview
	}
}
