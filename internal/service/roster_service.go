package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/export"
)

type rosterSource interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error)
}

var rosterHeaders = []string{"Roll No", "Admission No", "Name", "Class", "Section", "Branch", "Status", "Promoted"}

// RosterFile is a rendered roster ready to stream to the client.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// RosterService renders class rosters as CSV, PDF or XLSX documents.
type RosterService struct {
	source rosterSource
	logger *zap.Logger
}

// NewRosterService constructs RosterService.
func NewRosterService(source rosterSource, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{source: source, logger: logger}
}

// Export renders the roster selected by filter in the requested format.
func (s *RosterService) Export(ctx context.Context, filter models.EnrollmentFilter, format string) (*RosterFile, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	roster, err := s.source.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	dataset := buildRosterDataset(filter, roster)
	data, err := exporter.Render(dataset)
	if err != nil {
		s.logger.Error("failed to render roster", zap.String("format", exporter.Extension()), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RosterFile{
		Filename:    rosterFilename(filter) + "." + exporter.Extension(),
		ContentType: exporter.ContentType(),
		Data:        data,
		Rows:        len(roster),
	}, nil
}

func buildRosterDataset(filter models.EnrollmentFilter, roster []models.RosterEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		roll := ""
		if entry.RollNumber != nil {
			roll = strconv.Itoa(*entry.RollNumber)
		}
		promoted := "No"
		if entry.IsPromoted {
			promoted = "Yes"
		}
		rows = append(rows, map[string]string{
			"Roll No":      roll,
			"Admission No": entry.AdmissionNo,
			"Name":         entry.FullName,
			"Class":        entry.ClassName,
			"Section":      entry.SectionName,
			"Branch":       entry.Branch,
			"Status":       string(entry.StudentStatus),
			"Promoted":     promoted,
		})
	}
	return export.Dataset{
		Title:   rosterTitle(filter),
		Headers: rosterHeaders,
		Rows:    rows,
	}
}

func rosterTitle(filter models.EnrollmentFilter) string {
	parts := []string{"Roster " + filter.AcademicYear}
	if filter.ClassName != "" {
		parts = append(parts, "Class "+filter.ClassName)
	}
	if filter.SectionName != "" {
		parts = append(parts, "Section "+filter.SectionName)
	}
	if filter.Branch != "" {
		parts = append(parts, filter.Branch)
	}
	return strings.Join(parts, " / ")
}

func rosterFilename(filter models.EnrollmentFilter) string {
	name := fmt.Sprintf("roster_%s", filter.AcademicYear)
	for _, part := range []string{filter.ClassName, filter.SectionName, filter.Branch} {
		if part == "" {
			continue
		}
		name += "_" + strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
				return r
			}
			return '-'
		}, part)
	}
	return name
}
