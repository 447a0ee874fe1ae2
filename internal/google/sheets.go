package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"salonbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timestampLayout = "2006-01-02 15:04:05"

var errRowNotFound = errors.New("reservation row not found")

var header = []interface{}{
	"ID", "Professional ID", "Service ID", "Client", "Email", "Phone", "Guest",
	"Scheduled At (UTC)", "Status", "Created At", "Updated At",
}

// ReservationsSheet mirrors reservations into a spreadsheet, one row per
// reservation keyed by the ID in column A.
type ReservationsSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewReservationsSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*ReservationsSheet, error) {
	// Ключ сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newReservationsSheet(srv, spreadsheetID, sheetName), nil
}

func newReservationsSheet(srv *sheets.Service, spreadsheetID, sheetName string) *ReservationsSheet {
	if sheetName == "" {
		sheetName = "Reservations"
	}
	return &ReservationsSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
	}
}

func (s *ReservationsSheet) rng(a1 string) string {
	return s.sheetName + "!" + a1
}

// TestConnection reads the header cell.
func (s *ReservationsSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (s *ReservationsSheet) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:K1"), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache indexes every row by the reservation ID in column A.
func (s *ReservationsSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

func cellID(v interface{}) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	default:
		return 0
	}
}

// UpsertReservation rewrites the reservation's row or appends it.
func (s *ReservationsSheet) UpsertReservation(ctx context.Context, r *models.Reservation) error {
	rowIdx, err := s.findRow(ctx, r.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendReservation(ctx, r)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng(fmt.Sprintf("A%d:K%d", rowIdx, rowIdx)), &sheets.ValueRange{
		Values: [][]interface{}{rowValues(r)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *ReservationsSheet) appendReservation(ctx context.Context, r *models.Reservation) error {
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{rowValues(r)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}
	// Номер строки узнаем при следующем поиске
	return nil
}

// Deliver mirrors the reservation snapshot carried by a notification.
func (s *ReservationsSheet) Deliver(ctx context.Context, p models.NotificationPayload) error {
	return s.UpsertReservation(ctx, &p.Reservation)
}

func (s *ReservationsSheet) findRow(ctx context.Context, id int64) (int, error) {
	if row, ok := s.cachedRow(id); ok {
		return row, nil
	}
	if err := s.WarmUpCache(ctx); err != nil {
		return 0, err
	}
	if row, ok := s.cachedRow(id); ok {
		return row, nil
	}
	return 0, errRowNotFound
}

func (s *ReservationsSheet) cachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func rowValues(r *models.Reservation) []interface{} {
	var serviceID interface{} = ""
	if r.ServiceID != nil {
		serviceID = *r.ServiceID
	}
	return []interface{}{
		r.ID,
		r.ProfessionalID,
		serviceID,
		r.ClientName,
		r.ClientEmail,
		r.ClientPhone,
		r.Guest,
		r.ScheduledAt.UTC().Format(timestampLayout),
		string(r.Status),
		r.CreatedAt.UTC().Format(timestampLayout),
		formatUpdated(r.UpdatedAt),
	}
}

func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
