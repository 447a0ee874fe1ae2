package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Reservations"

var columns = []string{"ID", "Date", "Time", "Professional", "Service", "Client", "Email", "Phone", "Guest", "Status", "Notes"}

// Source is what the exporter reads from the store.
type Source interface {
	ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error)
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

// Exporter renders reservation listings as XLSX workbooks.
type Exporter struct {
	source Source
	dir    string
	loc    *time.Location
	logger *zerolog.Logger
}

func NewExporter(source Source, dir string, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{source: source, dir: dir, loc: loc, logger: logger}
}

// WriteTo streams the workbook for filter into w.
func (e *Exporter) WriteTo(ctx context.Context, w io.Writer, filter models.ReservationFilter) error {
	f, err := e.build(ctx, filter)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *Exporter) SaveFile(ctx context.Context, filter models.ReservationFilter) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, filter)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(filter))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

// FileName names an export after its period.
func FileName(filter models.ReservationFilter) string {
	name := "reservations"
	if filter.ProfessionalID != 0 {
		name = fmt.Sprintf("reservations_pro%d", filter.ProfessionalID)
	}
	if filter.From.IsZero() || filter.To.IsZero() {
		return name + ".xlsx"
	}
	return fmt.Sprintf("%s_%s_to_%s.xlsx", name, filter.From.Format("2006-01-02"), filter.To.Format("2006-01-02"))
}

func (e *Exporter) build(ctx context.Context, filter models.ReservationFilter) (*excelize.File, error) {
	reservations, err := e.source.ListReservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error getting reservations: %w", err)
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].ScheduledAt.Before(reservations[j].ScheduledAt)
	})

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, title)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	names := newNameCache(e.source)
	for i, r := range reservations {
		local := r.ScheduledAt.In(e.loc)
		values := []interface{}{
			r.ID,
			local.Format("02.01.2006"),
			local.Format("15:04"),
			names.professional(ctx, r.ProfessionalID),
			names.service(ctx, r.ServiceID),
			r.ClientName,
			r.ClientEmail,
			r.ClientPhone,
			yesNo(r.Guest),
			string(r.Status),
			r.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", i+2, err)
		}
		if style, ok := statusStyle(f, r.Status); ok {
			statusCell, _ := excelize.CoordinatesToCellName(10, i+2)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "C", 12)
	_ = f.SetColWidth(sheetName, "D", "H", 22)
	_ = f.SetColWidth(sheetName, "I", "J", 12)
	_ = f.SetColWidth(sheetName, "K", "K", 40)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return f, nil
}

func statusStyle(f *excelize.File, status models.ReservationStatus) (int, bool) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusPending:
		color = "#FFEB9C"
	case models.StatusDeclined, models.StatusCancelled:
		color = "#FFC7CE"
	default:
		return 0, false
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	return style, err == nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// nameCache avoids repeating catalog lookups for every row.
type nameCache struct {
	source        Source
	professionals map[int64]string
	services      map[int64]string
}

func newNameCache(source Source) *nameCache {
	return &nameCache{
		source:        source,
		professionals: make(map[int64]string),
		services:      make(map[int64]string),
	}
}

func (c *nameCache) professional(ctx context.Context, id int64) string {
	if name, ok := c.professionals[id]; ok {
		return name
	}
	name := fmt.Sprintf("#%d", id)
	if p, err := c.source.GetProfessional(ctx, id); err == nil {
		name = p.Name
	}
	c.professionals[id] = name
	return name
}

func (c *nameCache) service(ctx context.Context, id *int64) string {
	if id == nil {
		return ""
	}
	if name, ok := c.services[*id]; ok {
		return name
	}
	name := fmt.Sprintf("#%d", *id)
	if s, err := c.source.GetService(ctx, *id); err == nil {
		name = s.Name
	}
	c.services[*id] = name
	return name
}
