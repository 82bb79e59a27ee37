package api

import (
	"context"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"google.golang.org/grpc"
)

const schedulingServiceName = "slotbook.scheduling.v1.SchedulingService"

type SubmitAvailabilityRequest struct {
	ProviderID int64     `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type SubmitAvailabilityResponse struct {
	AvailabilityID int64          `json:"availability_id"`
	Slots          []*models.Slot `json:"slots"`
}

type ListAvailableSlotsRequest struct {
	ProviderID int64 `json:"provider_id"`
}

type ListAvailableSlotsResponse struct {
	Slots []*models.Slot `json:"available_slots"`
}

type ReserveSlotRequest struct {
	ClientID int64 `json:"client_id"`
	SlotID   int64 `json:"slot_id"`
}

type ReserveSlotResponse struct {
	ReservationID int64     `json:"reservation_id"`
	SlotID        int64     `json:"slot_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type ConfirmReservationRequest struct {
	ClientID      int64 `json:"client_id"`
	ReservationID int64 `json:"reservation_id"`
}

type ConfirmReservationResponse struct {
	Reservation *models.Reservation `json:"reservation"`
}

type ExpireStaleReservationsRequest struct{}

type ExpireStaleReservationsResponse struct {
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// SchedulingServer is the server side of slotbook.scheduling.v1.SchedulingService.
type SchedulingServer interface {
	SubmitAvailability(context.Context, *SubmitAvailabilityRequest) (*SubmitAvailabilityResponse, error)
	ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error)
	ReserveSlot(context.Context, *ReserveSlotRequest) (*ReserveSlotResponse, error)
	ConfirmReservation(context.Context, *ConfirmReservationRequest) (*ConfirmReservationResponse, error)
	ExpireStaleReservations(context.Context, *ExpireStaleReservationsRequest) (*ExpireStaleReservationsResponse, error)
}

var schedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: schedulingServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitAvailability", Handler: unaryHandler("SubmitAvailability", SchedulingServer.SubmitAvailability)},
		{MethodName: "ListAvailableSlots", Handler: unaryHandler("ListAvailableSlots", SchedulingServer.ListAvailableSlots)},
		{MethodName: "ReserveSlot", Handler: unaryHandler("ReserveSlot", SchedulingServer.ReserveSlot)},
		{MethodName: "ConfirmReservation", Handler: unaryHandler("ConfirmReservation", SchedulingServer.ConfirmReservation)},
		{MethodName: "ExpireStaleReservations", Handler: unaryHandler("ExpireStaleReservations", SchedulingServer.ExpireStaleReservations)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/scheduling/v1",
}

func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&schedulingServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(SchedulingServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + schedulingServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SchedulingClient calls the scheduling service over a JSON-coded connection.
type SchedulingClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingClient(cc grpc.ClientConnInterface) *SchedulingClient {
	return &SchedulingClient{cc: cc}
}

func (c *SchedulingClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(JSONCodec{})}, opts...)
	return c.cc.Invoke(ctx, "/"+schedulingServiceName+"/"+method, in, out, opts...)
}

func (c *SchedulingClient) SubmitAvailability(ctx context.Context, in *SubmitAvailabilityRequest, opts ...grpc.CallOption) (*SubmitAvailabilityResponse, error) {
	out := new(SubmitAvailabilityResponse)
	if err := c.invoke(ctx, "SubmitAvailability", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingClient) ListAvailableSlots(ctx context.Context, in *ListAvailableSlotsRequest, opts ...grpc.CallOption) (*ListAvailableSlotsResponse, error) {
	out := new(ListAvailableSlotsResponse)
	if err := c.invoke(ctx, "ListAvailableSlots", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingClient) ReserveSlot(ctx context.Context, in *ReserveSlotRequest, opts ...grpc.CallOption) (*ReserveSlotResponse, error) {
	out := new(ReserveSlotResponse)
	if err := c.invoke(ctx, "ReserveSlot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingClient) ConfirmReservation(ctx context.Context, in *ConfirmReservationRequest, opts ...grpc.CallOption) (*ConfirmReservationResponse, error) {
	out := new(ConfirmReservationResponse)
	if err := c.invoke(ctx, "ConfirmReservation", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingClient) ExpireStaleReservations(ctx context.Context, in *ExpireStaleReservationsRequest, opts ...grpc.CallOption) (*ExpireStaleReservationsResponse, error) {
	out := new(ExpireStaleReservationsResponse)
	if err := c.invoke(ctx, "ExpireStaleReservations", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SchedulingService adapts a domain.Scheduler to SchedulingServer.
type SchedulingService struct {
	scheduler domain.Scheduler
}

var _ SchedulingServer = (*SchedulingService)(nil)

func NewSchedulingService(scheduler domain.Scheduler) *SchedulingService {
	return &SchedulingService{scheduler: scheduler}
}

func (s *SchedulingService) SubmitAvailability(ctx context.Context, req *SubmitAvailabilityRequest) (*SubmitAvailabilityResponse, error) {
	if req.ProviderID <= 0 {
		return nil, grpcError(domain.Invalid("provider_id is required"))
	}
	res, err := s.scheduler.SubmitAvailability(ctx, req.ProviderID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, grpcError(err)
	}
	return &SubmitAvailabilityResponse{AvailabilityID: res.Availability.ID, Slots: res.Slots}, nil
}

func (s *SchedulingService) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error) {
	slots, err := s.scheduler.ListAvailableSlots(ctx, req.ProviderID)
	if err != nil {
		return nil, grpcError(err)
	}
	if slots == nil {
		slots = []*models.Slot{}
	}
	return &ListAvailableSlotsResponse{Slots: slots}, nil
}

func (s *SchedulingService) ReserveSlot(ctx context.Context, req *ReserveSlotRequest) (*ReserveSlotResponse, error) {
	hold, err := s.scheduler.ReserveSlot(ctx, req.ClientID, req.SlotID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ReserveSlotResponse{ReservationID: hold.ReservationID, SlotID: hold.SlotID, ExpiresAt: hold.ExpiresAt}, nil
}

func (s *SchedulingService) ConfirmReservation(ctx context.Context, req *ConfirmReservationRequest) (*ConfirmReservationResponse, error) {
	res, err := s.scheduler.ConfirmReservation(ctx, req.ClientID, req.ReservationID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ConfirmReservationResponse{Reservation: res}, nil
}

func (s *SchedulingService) ExpireStaleReservations(ctx context.Context, _ *ExpireStaleReservationsRequest) (*ExpireStaleReservationsResponse, error) {
	res, err := s.scheduler.ExpireStaleReservations(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ExpireStaleReservationsResponse{Released: res.Released, Failed: res.Failed}, nil
}
