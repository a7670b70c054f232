package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"cohortflow/internal/database"
	"cohortflow/internal/domain"
)

// Memory 是进程内实现，所有读写在同一把锁下完成。
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	users        map[string]database.User
	profiles     map[string]database.ApplicantProfile
	programs     map[string]database.Program
	applications map[string]database.Application
	documents    map[string]database.Document
	reviews      map[string]database.Review
	audit        []database.AuditLog

	// 插入顺序，用于稳定排序。
	programOrder []string
	appOrder     []string
	docOrder     []string
	reviewOrder  []string
}

// MemoryOption configures NewMemory.
type MemoryOption func(*Memory)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:          func() time.Time { return time.Now().UTC() },
		users:        map[string]database.User{},
		profiles:     map[string]database.ApplicantProfile{},
		programs:     map[string]database.Program{},
		applications: map[string]database.Application{},
		documents:    map[string]database.Document{},
		reviews:      map[string]database.Review{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Users() UserStore               { return memoryUsers{m} }
func (m *Memory) Profiles() ProfileStore         { return memoryProfiles{m} }
func (m *Memory) Programs() ProgramStore         { return memoryPrograms{m} }
func (m *Memory) Applications() ApplicationStore { return memoryApplications{m} }
func (m *Memory) Documents() DocumentStore       { return memoryDocuments{m} }
func (m *Memory) Reviews() ReviewStore           { return memoryReviews{m} }
func (m *Memory) AuditLogs() AuditLogStore       { return memoryAudit{m} }

func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

type memoryUsers struct{ m *Memory }

func (s memoryUsers) Create(_ context.Context, user *database.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	for _, existing := range s.m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrConflict
		}
	}
	assignID(&user.ID)
	if _, ok := s.m.users[user.ID]; ok {
		return ErrConflict
	}
	now := s.m.now()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.Profile = nil
	s.m.users[user.ID] = stored
	return nil
}

func (s memoryUsers) Get(_ context.Context, id string) (*database.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	user, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s memoryUsers) GetByEmail(_ context.Context, email string) (*database.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	for _, user := range s.m.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s memoryUsers) UpdateCredentials(_ context.Context, id, passwordHash string, mustChange bool) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	user, ok := s.m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.MustChangePassword = mustChange
	user.UpdatedAt = s.m.now()
	s.m.users[id] = user
	return nil
}

func (s memoryUsers) ListByRole(_ context.Context, role domain.Role) ([]database.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]database.User, 0)
	for _, user := range s.m.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	slices.SortFunc(out, func(a, b database.User) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

type memoryProfiles struct{ m *Memory }

func (s memoryProfiles) GetByUser(_ context.Context, userID string) (*database.ApplicantProfile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	for _, profile := range s.m.profiles {
		if profile.UserID == userID {
			return &profile, nil
		}
	}
	return nil, ErrNotFound
}

func (s memoryProfiles) Get(_ context.Context, id string) (*database.ApplicantProfile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	profile, ok := s.m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &profile, nil
}

func (s memoryProfiles) Upsert(_ context.Context, profile *database.ApplicantProfile) (*database.ApplicantProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	now := s.m.now()
	stored := *profile
	stored.Applications = nil
	stored.UpdatedAt = now

	var existing *database.ApplicantProfile
	for _, p := range s.m.profiles {
		if p.UserID == profile.UserID {
			existing = &p
			break
		}
	}
	if existing != nil {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = ""
		assignID(&stored.ID)
		stored.CreatedAt = now
	}
	s.m.profiles[stored.ID] = stored
	out := stored
	return &out, nil
}

type memoryPrograms struct{ m *Memory }

func cloneProgram(p database.Program) database.Program {
	p.Applications = nil
	p.Requirements = slices.Clone(p.Requirements)
	rubric := p.Rubric.Data()
	rubric.Criteria = slices.Clone(rubric.Criteria)
	p.Rubric = datatypes.NewJSONType(rubric)
	return p
}

func (s memoryPrograms) Create(_ context.Context, program *database.Program) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	assignID(&program.ID)
	if _, ok := s.m.programs[program.ID]; ok {
		return ErrConflict
	}
	now := s.m.now()
	program.CreatedAt, program.UpdatedAt = now, now
	s.m.programs[program.ID] = cloneProgram(*program)
	s.m.programOrder = append(s.m.programOrder, program.ID)
	return nil
}

func (s memoryPrograms) Get(_ context.Context, id string) (*database.Program, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	program, ok := s.m.programs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneProgram(program)
	return &out, nil
}

func (s memoryPrograms) Update(_ context.Context, program *database.Program) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	existing, ok := s.m.programs[program.ID]
	if !ok {
		return ErrNotFound
	}
	program.CreatedAt = existing.CreatedAt
	program.CreatorID = existing.CreatorID
	program.UpdatedAt = s.m.now()
	s.m.programs[program.ID] = cloneProgram(*program)
	return nil
}

func (s memoryPrograms) List(_ context.Context, filter ProgramFilter) ([]database.Program, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]database.Program, 0, len(s.m.programOrder))
	for i := len(s.m.programOrder) - 1; i >= 0; i-- {
		program := s.m.programs[s.m.programOrder[i]]
		if filter.Status != "" && program.Status != filter.Status {
			continue
		}
		out = append(out, cloneProgram(program))
	}
	return out, nil
}

type memoryApplications struct{ m *Memory }

func cloneApplication(a database.Application) database.Application {
	a.Documents = nil
	a.Reviews = nil
	a.Responses = datatypes.NewJSONType(maps.Clone(a.Responses.Data()))
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		a.SubmittedAt = &at
	}
	return a
}

func (s memoryApplications) Create(_ context.Context, app *database.Application) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	assignID(&app.ID)
	if _, ok := s.m.applications[app.ID]; ok {
		return ErrConflict
	}
	now := s.m.now()
	app.CreatedAt, app.UpdatedAt = now, now
	s.m.applications[app.ID] = cloneApplication(*app)
	s.m.appOrder = append(s.m.appOrder, app.ID)
	return nil
}

func (s memoryApplications) Get(_ context.Context, id string) (*database.Application, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	app, ok := s.m.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneApplication(app)
	return &out, nil
}

func (s memoryApplications) Update(_ context.Context, app *database.Application) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	existing, ok := s.m.applications[app.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = app.Status
	existing.Responses = app.Responses
	existing.SubmittedAt = app.SubmittedAt
	existing.UpdatedAt = s.m.now()
	s.m.applications[app.ID] = cloneApplication(existing)

	app.ProgramID = existing.ProgramID
	app.ApplicantID = existing.ApplicantID
	app.CreatedAt = existing.CreatedAt
	app.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s memoryApplications) List(_ context.Context, filter ApplicationFilter) ([]database.Application, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]database.Application, 0)
	for _, id := range s.m.appOrder {
		app := s.m.applications[id]
		if filter.ProgramID != "" && app.ProgramID != filter.ProgramID {
			continue
		}
		if filter.ApplicantID != "" && app.ApplicantID != filter.ApplicantID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, app.Status) {
			continue
		}
		out = append(out, cloneApplication(app))
	}
	return out, nil
}

type memoryDocuments struct{ m *Memory }

func (s memoryDocuments) Create(_ context.Context, doc *database.Document) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.applications[doc.ApplicationID]; !ok {
		return ErrNotFound
	}
	assignID(&doc.ID)
	if _, ok := s.m.documents[doc.ID]; ok {
		return ErrConflict
	}
	doc.UploadedAt = s.m.now()
	s.m.documents[doc.ID] = *doc
	s.m.docOrder = append(s.m.docOrder, doc.ID)
	return nil
}

func (s memoryDocuments) Get(_ context.Context, id string) (*database.Document, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	doc, ok := s.m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (s memoryDocuments) ListByApplication(_ context.Context, applicationID string) ([]database.Document, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]database.Document, 0)
	for _, id := range s.m.docOrder {
		if doc := s.m.documents[id]; doc.ApplicationID == applicationID {
			out = append(out, doc)
		}
	}
	return out, nil
}

type memoryReviews struct{ m *Memory }

func cloneReview(r database.Review) database.Review {
	r.Scores = datatypes.NewJSONType(maps.Clone(r.Scores.Data()))
	return r
}

func (s memoryReviews) Upsert(_ context.Context, review *database.Review) (*database.Review, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	now := s.m.now()
	stored := cloneReview(*review)
	stored.UpdatedAt = now

	existingID := ""
	for _, id := range s.m.reviewOrder {
		r := s.m.reviews[id]
		if r.ApplicationID == review.ApplicationID && r.ReviewerID == review.ReviewerID {
			existingID = id
			break
		}
	}
	if existingID != "" {
		stored.ID = existingID
		stored.CreatedAt = s.m.reviews[existingID].CreatedAt
	} else {
		stored.ID = ""
		assignID(&stored.ID)
		stored.CreatedAt = now
		s.m.reviewOrder = append(s.m.reviewOrder, stored.ID)
	}
	s.m.reviews[stored.ID] = stored

	out := cloneReview(stored)
	return &out, nil
}

func (s memoryReviews) Get(_ context.Context, applicationID, reviewerID string) (*database.Review, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	for _, id := range s.m.reviewOrder {
		r := s.m.reviews[id]
		if r.ApplicationID == applicationID && r.ReviewerID == reviewerID {
			out := cloneReview(r)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s memoryReviews) ListByApplication(_ context.Context, applicationID string) ([]database.Review, error) {
	return s.list(func(r database.Review) bool { return r.ApplicationID == applicationID }), nil
}

func (s memoryReviews) ListByReviewer(_ context.Context, reviewerID string) ([]database.Review, error) {
	return s.list(func(r database.Review) bool { return r.ReviewerID == reviewerID }), nil
}

func (s memoryReviews) list(match func(database.Review) bool) []database.Review {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]database.Review, 0)
	for _, id := range s.m.reviewOrder {
		if r := s.m.reviews[id]; match(r) {
			out = append(out, cloneReview(r))
		}
	}
	return out
}

type memoryAudit struct{ m *Memory }

func (s memoryAudit) Append(_ context.Context, entry *database.AuditLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	assignID(&entry.ID)
	entry.CreatedAt = s.m.now()
	s.m.audit = append(s.m.audit, *entry)
	return nil
}

func (s memoryAudit) List(_ context.Context, limit, offset int) ([]database.AuditLog, int64, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	total := int64(len(s.m.audit))
	out := make([]database.AuditLog, 0, limit)
	for i := len(s.m.audit) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.m.audit[i])
	}
	return out, total, nil
}
