// Package export renders a program's applications as CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/review"
	"cohortflow/internal/store"
)

// Header 列顺序固定。
var Header = []string{
	"Application ID",
	"First Name",
	"Last Name",
	"Email",
	"Phone",
	"Status",
	"Submitted At",
	"Review Count",
	"Average Score",
	"Document Count",
}

// ContentType of the rendered export.
const ContentType = "text/csv; charset=utf-8"

// Row is one application line.
type Row struct {
	ApplicationID string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	Status        domain.ApplicationStatus
	SubmittedAt   *time.Time
	ReviewCount   int
	AverageScore  *float64
	DocumentCount int
}

func (r Row) record() []string {
	submitted := ""
	if r.SubmittedAt != nil {
		submitted = r.SubmittedAt.UTC().Format(time.RFC3339)
	}
	average := "N/A"
	if r.AverageScore != nil {
		average = strconv.FormatFloat(*r.AverageScore, 'f', -1, 64)
	}
	return []string{
		r.ApplicationID,
		r.FirstName,
		r.LastName,
		r.Email,
		r.Phone,
		string(r.Status),
		submitted,
		strconv.Itoa(r.ReviewCount),
		average,
		strconv.Itoa(r.DocumentCount),
	}
}

// Write emits the header followed by one record per row.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return fmt.Errorf("write row %s: %w", row.ApplicationID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Render is Write into a buffer.
func Render(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Collector 从存储层汇总导出所需的行。
type Collector struct {
	store store.Store
}

func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Rows returns one row per application of the program, in creation order.
func (c *Collector) Rows(ctx context.Context, programID string) ([]Row, error) {
	apps, err := c.store.Applications().List(ctx, store.ApplicationFilter{ProgramID: programID})
	if err != nil {
		return nil, errcode.NewInternal(fmt.Errorf("list applications: %w", err))
	}

	rows := make([]Row, 0, len(apps))
	for _, app := range apps {
		row := Row{
			ApplicationID: app.ID,
			Status:        app.Status,
			SubmittedAt:   app.SubmittedAt,
		}

		profile, err := c.store.Profiles().Get(ctx, app.ApplicantID)
		switch {
		case err == nil:
			row.FirstName = profile.FirstName
			row.LastName = profile.LastName
			row.Email = profile.Email
			row.Phone = profile.Phone
		case !errors.Is(err, store.ErrNotFound):
			return nil, errcode.NewInternal(fmt.Errorf("load applicant: %w", err))
		}

		reviews, err := c.store.Reviews().ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, errcode.NewInternal(fmt.Errorf("list reviews: %w", err))
		}
		summary := review.Summarize(reviews)
		row.ReviewCount = summary.Count
		row.AverageScore = summary.AverageScore

		docs, err := c.store.Documents().ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, errcode.NewInternal(fmt.Errorf("list documents: %w", err))
		}
		row.DocumentCount = len(docs)

		rows = append(rows, row)
	}
	return rows, nil
}

// FileName suggests a download name for a program export.
func FileName(programID string, at time.Time) string {
	return fmt.Sprintf("applications-%s-%s.csv", programID, at.UTC().Format("20060102-150405"))
}

