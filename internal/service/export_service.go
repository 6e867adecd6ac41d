package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tourdesk/booking-api/internal/models"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
	"github.com/tourdesk/booking-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportApplicationLister interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
}

// ExportResult carries a rendered document for HTTP delivery.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders the application roster of a tour as CSV or PDF for
// the operations console.
type ExportService struct {
	apps   exportApplicationLister
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(apps exportApplicationLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		apps:   apps,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// Applications exports every application for a tour in the requested format.
func (s *ExportService) Applications(ctx context.Context, tourID, format string) (*ExportResult, error) {
	if tourID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tourId is required")
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	applications, _, err := s.apps.List(ctx, models.ApplicationFilter{
		TourID:   tourID,
		PageSize: 100,
		SortBy:   "created_at",
		// full roster: walk pages until exhausted
		Page: 1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applications")
	}
	all := applications
	for page := 2; len(applications) == 100; page++ {
		applications, _, err = s.apps.List(ctx, models.ApplicationFilter{TourID: tourID, PageSize: 100, Page: page, SortBy: "created_at"})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applications")
		}
		all = append(all, applications...)
	}

	dataset := buildApplicationDataset(all)

	var tourLabel string
	if len(all) > 0 {
		tourLabel = all[0].TourTitle
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("applications-%s-%s.csv", tourID, stamp),
		}, nil
	default:
		title := "Tour applications"
		if tourLabel != "" {
			title = fmt.Sprintf("Applications - %s", tourLabel)
		}
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("applications-%s-%s.pdf", tourID, stamp),
		}, nil
	}
}

func buildApplicationDataset(applications []models.ApplicationDetail) export.Dataset {
	headers := []string{"Applicant", "Contact", "Status", "Applied", "Tour date", "Note"}
	rows := make([]map[string]string, 0, len(applications))
	for _, app := range applications {
		rows = append(rows, map[string]string{
			"Applicant": app.ApplicantName,
			"Contact":   app.ApplicantContact,
			"Status":    string(app.Status),
			"Applied":   app.CreatedAt.Format("2006-01-02 15:04"),
			"Tour date": app.TourDate.Format("2006-01-02"),
			"Note":      app.ApplicantNote,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
