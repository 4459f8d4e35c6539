package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
	"github.com/noah-isme/newsdesk/pkg/export"
)

type dashboardLister interface {
	Dashboard(ctx context.Context, session models.Session) ([]models.Article, error)
}

type tableRenderer interface {
	Render(t export.Table) ([]byte, error)
}

// DeskReport is a rendered dashboard export.
type DeskReport struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders a session's dashboard as a downloadable report.
type ExportService struct {
	articles dashboardLister
	csv      tableRenderer
	pdf      tableRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService wires the renderers. Nil renderers fall back to the
// default exporters.
func NewExportService(articles dashboardLister, csv, pdf tableRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{articles: articles, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// DeskReport exports the articles Dashboard returns for session.
func (s *ExportService) DeskReport(ctx context.Context, session models.Session, format string) (*DeskReport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	articles, err := s.articles.Dashboard(ctx, session)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	table := deskTable(articles, fmt.Sprintf("Mesa de redacción %s", now.Format("2006-01-02 15:04")))
	renderer := s.csv
	if f == export.FormatPDF {
		renderer = s.pdf
	}
	body, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	s.logger.Info("desk report exported",
		zap.String("identity_id", session.IdentityID),
		zap.String("format", string(f)),
		zap.Int("rows", len(articles)),
	)
	return &DeskReport{
		Filename:    fmt.Sprintf("desk-%s.%s", now.Format("20060102-150405"), f),
		ContentType: f.ContentType(),
		Body:        body,
		Rows:        len(articles),
	}, nil
}

func deskTable(articles []models.Article, title string) export.Table {
	t := export.Table{
		Title:   title,
		Columns: []string{"ID", "Título", "Sección", "Autor", "Estado", "Actualizado"},
		Rows:    make([][]string, 0, len(articles)),
	}
	for _, a := range articles {
		t.Rows = append(t.Rows, []string{
			a.ID, a.Title, a.Category, a.AuthorName, string(a.Status), a.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}
