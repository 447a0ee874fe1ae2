package api

import (
	"context"
	"net"
	"testing"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T, env *apiEnv) *grpc.ClientConn {
	t.Helper()
	logger := zerolog.Nop()
	cfg := config.APIConfig{
		GRPC: config.APIGRPCConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "reader", Name: "widget", Permissions: []string{permReadAvailability}},
				{Key: "partner", Name: "partner", Permissions: []string{permReadAvailability, permWriteBookings}},
			},
		},
	}
	srv, err := NewGRPCServer(cfg, NewAvailabilityService(env.bookings, env.catalog, env.slots), env.sessions, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	conn, err := grpc.NewClient("127.0.0.1:"+port, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method, apiKey string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeaderDefault, apiKey)
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, method, req, out)
	return out, err
}

func TestGRPC_GetSlots(t *testing.T) {
	env := newAPIEnv(t)
	conn := startGRPC(t, env)

	req := map[string]any{"professional_id": float64(env.pro.ID), "date": env.day.Format(models.DateLayout)}

	_, err := invoke(t, conn, methodGetSlots, "", req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	out, err := invoke(t, conn, methodGetSlots, "reader", req)
	require.NoError(t, err)
	slots := out.AsMap()["slots"].([]any)
	assert.Len(t, slots, 26)
	first := slots[0].(map[string]any)
	assert.Equal(t, "09:00", first["time"])
	assert.Equal(t, string(models.SlotAvailable), first["status"])

	_, err = invoke(t, conn, methodGetSlots, "reader", map[string]any{"professional_id": float64(env.pro.ID), "date": "tomorrow"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, methodGetSlots, "reader", map[string]any{"professional_id": float64(999), "date": env.day.Format(models.DateLayout)})
	assert.Equal(t, codes.NotFound, status.Code(err))

	out, err = invoke(t, conn, methodListProfessionals, "reader", map[string]any{})
	require.NoError(t, err)
	assert.Len(t, out.AsMap()["professionals"], 1)
}

func TestGRPC_CreateGuestBooking(t *testing.T) {
	env := newAPIEnv(t)
	conn := startGRPC(t, env)

	req := map[string]any{
		"professional_id": float64(env.pro.ID),
		"scheduled_at":    env.at(13, 0).Format(time.RFC3339),
		"client_name":     "Guest Person",
		"client_email":    "guest@example.com",
		"client_phone":    "+34 600 111 222",
	}

	_, err := invoke(t, conn, methodCreateGuestBooking, "reader", req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out, err := invoke(t, conn, methodCreateGuestBooking, "partner", req)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, true, m["success"])
	res := m["reservation"].(map[string]any)
	assert.Equal(t, string(models.StatusPending), res["status"])
	assert.NotEmpty(t, res["respond_by"])

	_, err = invoke(t, conn, methodCreateGuestBooking, "partner", req)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "this time slot is no longer available", st.Message())

	assert.Equal(t, models.SlotBooked, slotStatus(env.daySlots(t), "13:00"))
}

func TestGRPC_CreateClientBookingNeedsSession(t *testing.T) {
	env := newAPIEnv(t)
	conn := startGRPC(t, env)
	token := env.register(t, "client@example.com")

	req := map[string]any{
		"professional_id": float64(env.pro.ID),
		"scheduled_at":    env.at(17, 30).Format(time.RFC3339),
	}

	_, err := invoke(t, conn, methodCreateClientBooking, "partner", req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	structReq, err := structpb.NewStruct(req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeaderDefault, "partner", "authorization", "Bearer "+token)
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, methodCreateClientBooking, structReq, out))
	res := out.AsMap()["reservation"].(map[string]any)
	assert.Equal(t, "client@example.com", res["client_email"])
	assert.Equal(t, false, res["guest"])
}
