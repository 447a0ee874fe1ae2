package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"salonbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheets keeps column A in memory and records writes.
type fakeSheets struct {
	mu      sync.Mutex
	ids     [][]interface{}
	appends int
	updates []string
}

func (f *fakeSheets) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, ":append"):
			var vr sheets.ValueRange
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &vr))
			f.appends++
			f.ids = append(f.ids, []interface{}{vr.Values[0][0]})
			_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{})
		case r.Method == http.MethodPut:
			f.updates = append(f.updates, path[strings.LastIndex(path, "/")+1:])
			_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: f.ids})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func setupSheet(t *testing.T) (*fakeSheets, *ReservationsSheet) {
	t.Helper()
	fake := &fakeSheets{ids: [][]interface{}{{"ID"}}}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return fake, newReservationsSheet(srv, "sheet_id", "")
}

func TestReservationsSheet_Upsert(t *testing.T) {
	ctx := context.Background()
	fake, s := setupSheet(t)

	r := &models.Reservation{
		ID: 7, ProfessionalID: 2, ClientName: "Ana", ClientEmail: "ana@example.com",
		ScheduledAt: time.Date(2030, time.June, 10, 12, 0, 0, 0, time.UTC),
		Status:      models.StatusPending,
		CreatedAt:   time.Date(2030, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertReservation(ctx, r))
	assert.Equal(t, 1, fake.appends)

	r.Status = models.StatusConfirmed
	require.NoError(t, s.Deliver(ctx, models.NotificationPayload{Event: models.NotifyConfirmed, Reservation: *r}))
	assert.Equal(t, 1, fake.appends, "existing row is rewritten, not appended")
	require.Len(t, fake.updates, 1)
	assert.Equal(t, "Reservations!A2:K2", fake.updates[0])
}

func TestReservationsSheet_WarmUpCache(t *testing.T) {
	fake, s := setupSheet(t)
	fake.ids = append(fake.ids, []interface{}{"12"}, []interface{}{}, []interface{}{float64(30)})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.cachedRow(12)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.cachedRow(30)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
}

func TestReservationsSheet_HeaderAndConnection(t *testing.T) {
	fake, s := setupSheet(t)
	ctx := context.Background()

	require.NoError(t, s.TestConnection(ctx))
	require.NoError(t, s.EnsureHeader(ctx))
	assert.Equal(t, []string{"Reservations!A1:K1"}, fake.updates)
}

func TestRowValues(t *testing.T) {
	serviceID := int64(3)
	r := &models.Reservation{ID: 1, ServiceID: &serviceID, Guest: true, Status: models.StatusDeclined}
	row := rowValues(r)
	require.Len(t, row, len(header))
	assert.Equal(t, int64(3), row[2])
	assert.Equal(t, "declined", row[8])
	assert.Equal(t, "", row[10])
}

func TestNewReservationsSheet_MissingCredentials(t *testing.T) {
	_, err := NewReservationsSheet(context.Background(), "/nonexistent/creds.json", "id", "")
	assert.Error(t, err)
}
