package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/export"
	"salonbook/internal/models"
	"salonbook/internal/repository"
	"salonbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@salon.test"
	adminPassword = "admin-secret"
	proEmail      = "anna@salon.test"
	proPassword   = "anna-secret"
)

type apiEnv struct {
	db       *database.DB
	bus      *events.EventBus
	bookings *service.BookingService
	catalog  *service.CatalogService
	slots    *availability.Service
	sessions *auth.Manager
	srv      *HTTPServer
	ts       *httptest.Server
	pro      *models.Professional
	admin    string
	proToken string
	// day is a date a week ahead, so every slot on it is in the future.
	day time.Time
}

func newAPIEnv(t *testing.T) *apiEnv {
	return newAPIEnvWithConfig(t, config.APIConfig{})
}

func newAPIEnvWithConfig(t *testing.T, apiCfg config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hours := models.WorkingHours{Open: "09:00", Close: "22:00"}
	bus := events.NewEventBus()
	slots := availability.NewService(db, hours, time.UTC, bus, &logger)
	notifier := service.NewOutboxNotifier(db, []string{models.ChannelEmail}, &logger)
	bookings := service.NewBookingService(db, slots, repository.NewMemoryRateLimiter(), bus, notifier, config.BookingConfig{
		MaxAdvanceDays:     90,
		RateLimitCount:     100,
		RateLimitWindow:    time.Minute,
		GuestPhoneRequired: true,
	}, &logger)
	catalog := service.NewCatalogService(db, bus, &logger)
	users := service.NewUserService(db, &logger)
	require.NoError(t, users.EnsureAdmins(ctx, []config.AdminSeed{{Email: adminEmail, Password: adminPassword}}))

	apiCfg.Session = config.SessionConfig{Secret: "test-secret", TTL: time.Hour, Issuer: "salonbook-test"}
	sessions := auth.NewManager(apiCfg.Session)

	env := &apiEnv{
		db:       db,
		bus:      bus,
		bookings: bookings,
		catalog:  catalog,
		slots:    slots,
		sessions: sessions,
		day:      time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 7),
	}
	env.srv = NewHTTPServer(apiCfg, Deps{
		Bookings: bookings,
		Catalog:  catalog,
		Users:    users,
		Slots:    slots,
		Sessions: sessions,
		Exporter: export.NewExporter(db, t.TempDir(), time.UTC, &logger),
		Bus:      bus,
	}, &logger)
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)

	env.admin = env.login(t, adminEmail, adminPassword)

	// Мастер: учетная запись + карточка, привязанная к ней
	proUser, err := users.Register(ctx, service.RegisterRequest{Email: proEmail, Name: "Anna", Password: proPassword})
	require.NoError(t, err)
	var pro models.Professional
	status, body := env.do(t, http.MethodPost, "/api/v1/admin/professionals", env.admin, map[string]any{
		"name":          "Anna",
		"user_id":       proUser.ID,
		"timezone":      "UTC",
		"working_hours": hours,
	})
	require.Equal(t, http.StatusCreated, status, body.Error)
	require.NoError(t, json.Unmarshal(body.Data, &pro))
	env.pro = &pro
	env.proToken = env.login(t, proEmail, proPassword)
	return env
}

// response mirrors envelope with a raw data field.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *apiEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, status, body.Error)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(body.Data, &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

// register creates a client account and returns its token.
func (e *apiEnv) register(t *testing.T, email string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/register", "", service.RegisterRequest{
		Email: email, Name: "Client " + email, Password: "client-secret",
	})
	require.Equal(t, http.StatusCreated, status, body.Error)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(body.Data, &sess))
	return sess.Token
}

func (e *apiEnv) at(hour, minute int) time.Time {
	return e.day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func (e *apiEnv) daySlots(t *testing.T) []models.TimeSlot {
	t.Helper()
	status, body := e.do(t, http.MethodGet, "/api/v1/professionals/"+itoa(e.pro.ID)+"/slots?date="+e.day.Format(models.DateLayout), "", nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	var out slotsResponse
	require.NoError(t, json.Unmarshal(body.Data, &out))
	return out.Slots
}

func slotStatus(slots []models.TimeSlot, hhmm string) models.SlotStatus {
	for _, s := range slots {
		if s.Time == hhmm {
			return s.Status
		}
	}
	return ""
}

func (e *apiEnv) guestBooking(at time.Time) models.BookingRequest {
	return models.BookingRequest{
		ProfessionalID: e.pro.ID,
		ScheduledAt:    at,
		ClientName:     "Guest Person",
		ClientEmail:    "guest@example.com",
		ClientPhone:    "+34 600 111 222",
	}
}

func decodeReservation(t *testing.T, body response) reservationView {
	t.Helper()
	var r reservationView
	require.NoError(t, json.Unmarshal(body.Data, &r))
	require.NotNil(t, r.Reservation)
	return r
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
