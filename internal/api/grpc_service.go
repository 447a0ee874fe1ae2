package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/availability"
	"salonbook/internal/domain"
	"salonbook/internal/models"
	"salonbook/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const availabilityServiceName = "salonbook.availability.v1.AvailabilityService"

const (
	methodListProfessionals   = "/" + availabilityServiceName + "/ListProfessionals"
	methodGetSlots            = "/" + availabilityServiceName + "/GetSlots"
	methodCreateGuestBooking  = "/" + availabilityServiceName + "/CreateGuestBooking"
	methodCreateClientBooking = "/" + availabilityServiceName + "/CreateClientBooking"
)

// AvailabilityServer is the RPC surface; messages are free-form structs with
// the same field names as the JSON API.
type AvailabilityServer interface {
	ListProfessionals(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateGuestBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateClientBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProfessionals", Handler: unaryHandler(methodListProfessionals, AvailabilityServer.ListProfessionals)},
		{MethodName: "GetSlots", Handler: unaryHandler(methodGetSlots, AvailabilityServer.GetSlots)},
		{MethodName: "CreateGuestBooking", Handler: unaryHandler(methodCreateGuestBooking, AvailabilityServer.CreateGuestBooking)},
		{MethodName: "CreateClientBooking", Handler: unaryHandler(methodCreateClientBooking, AvailabilityServer.CreateClientBooking)},
	},
	Metadata: "salonbook/availability/v1",
}

// AvailabilityService serves slots and booking creation to machine clients.
type AvailabilityService struct {
	bookings *service.BookingService
	catalog  *service.CatalogService
	slots    *availability.Service
	now      func() time.Time
}

func NewAvailabilityService(bookings *service.BookingService, catalog *service.CatalogService, slots *availability.Service) *AvailabilityService {
	return &AvailabilityService{bookings: bookings, catalog: catalog, slots: slots, now: time.Now}
}

func (s *AvailabilityService) ListProfessionals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.catalog.ListProfessionals(ctx, auth.SessionFromContext(ctx), false)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]any{"professionals": list})
}

type slotsRequest struct {
	ProfessionalID int64  `json:"professional_id"`
	Date           string `json:"date"`
}

func (s *AvailabilityService) GetSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req slotsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ProfessionalID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "professional_id is required")
	}
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}

	slots, err := s.slots.Slots(ctx, req.ProfessionalID, date, s.now())
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(slotsResponse{ProfessionalID: req.ProfessionalID, Date: req.Date, Slots: slots})
}

func (s *AvailabilityService) CreateGuestBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.BookingRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	r, err := s.bookings.CreateGuestBooking(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]any{"success": true, "reservation": bookingView(r)})
}

func (s *AvailabilityService) CreateClientBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.BookingRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	r, err := s.bookings.CreateClientBooking(ctx, auth.SessionFromContext(ctx), req)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]any{"success": true, "reservation": bookingView(r)})
}

// decodeStruct maps a Struct onto dst through JSON so field names match the HTTP API.
func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// grpcError converts a service error into a status with a user-safe message.
func grpcError(err error) error {
	var code codes.Code
	switch domain.Kind(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindConflict:
		code = codes.FailedPrecondition
	case domain.KindUnauthorized:
		code = codes.Unauthenticated
	case domain.KindForbidden:
		code = codes.PermissionDenied
	case domain.KindRateLimited:
		code = codes.ResourceExhausted
	case domain.KindInternal:
		code = codes.Internal
	default:
		code = codes.Internal
	}
	return status.Error(code, domain.PublicMessage(err))
}
