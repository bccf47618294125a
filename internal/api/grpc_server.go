package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/domain"
	"practiceapi/internal/logging"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	reservationServiceName  = "practiceapi.reservation.v1.ReservationService"
	methodCheckAvailability = "/" + reservationServiceName + "/CheckAvailability"
	methodPlaceBid          = "/" + reservationServiceName + "/PlaceBid"
	methodGetListing        = "/" + reservationServiceName + "/GetListing"
)

// ReservationServer is the gRPC surface. Messages are google.protobuf.Struct carrying the same
// JSON shapes as the HTTP API.
type ReservationServer interface {
	CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PlaceBid(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetListing(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(fullMethod string, call func(ReservationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ReservationServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

var reservationServiceDesc = grpc.ServiceDesc{
	ServiceName: reservationServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CheckAvailability",
			Handler: unaryHandler(methodCheckAvailability, func(s ReservationServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.CheckAvailability(ctx, in)
			}),
		},
		{
			MethodName: "PlaceBid",
			Handler: unaryHandler(methodPlaceBid, func(s ReservationServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.PlaceBid(ctx, in)
			}),
		},
		{
			MethodName: "GetListing",
			Handler: unaryHandler(methodGetListing, func(s ReservationServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetListing(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "practiceapi/reservation/v1/reservation.proto",
}

// reservationService adapts the domain services to ReservationServer.
type reservationService struct {
	svcs   Services
	logger *zerolog.Logger
}

func (s *reservationService) CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		VenueID  int64    `json:"venueId"`
		DateFrom flexTime `json:"dateFrom"`
		DateTo   flexTime `json:"dateTo"`
		Guests   int      `json:"guests"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	decision, err := s.svcs.Bookings.CheckAvailability(ctx, req.VenueID, req.DateFrom.Time, req.DateTo.Time, req.Guests)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(decision)
}

func (s *reservationService) PlaceBid(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	bidder := CallerFrom(ctx)
	if bidder == "" {
		return nil, status.Error(codes.Unauthenticated, errNoCaller.Error())
	}
	var req struct {
		ListingID int64 `json:"listingId"`
		Amount    int   `json:"amount"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	bid, profile, err := s.svcs.Auction.PlaceBid(ctx, req.ListingID, bidder, req.Amount)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]any{"bid": bid, "credits": profile.Credits})
}

func (s *reservationService) GetListing(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ID   int64 `json:"id"`
		Bids bool  `json:"bids"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	listing, err := s.svcs.Auction.GetListing(ctx, req.ID, req.Bids)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(listing)
}

// toStatus maps a domain error onto a gRPC status. Internal errors are logged and hidden.
func (s *reservationService) toStatus(err error) error {
	de, ok := domain.AsError(err)
	if !ok || de.Kind == domain.KindInternal {
		s.logger.Error().Err(err).Msg("grpc call failed")
		return status.Error(codes.Internal, "internal server error")
	}
	var code codes.Code
	switch de.Kind {
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindForbidden:
		code = codes.PermissionDenied
	case domain.KindConflict:
		code = codes.FailedPrecondition
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindRateLimit:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}
	return status.Error(code, de.Message)
}

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
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
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      *zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, svcs Services, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	var opts []grpc.ServerOption
	if cfg.GRPC.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
		if err != nil {
			_ = lis.Close()
			return nil, err
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}
	return newGRPCServer(cfg, svcs, lis, logger, opts...), nil
}

func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("grpc tls enabled but cert_file/key_file not set")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load grpc tls keypair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.RequireClientCert {
		if cfg.ClientCAFile == "" {
			return nil, fmt.Errorf("grpc tls require_client_cert=true but client_ca_file not set")
		}
		caPEM, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read client_ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse client_ca_file PEM")
		}
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		tlsCfg.ClientCAs = pool
	}

	return tlsCfg, nil
}

func newGRPCServer(cfg config.APIConfig, svcs Services, lis net.Listener, logger *zerolog.Logger, opts ...grpc.ServerOption) *GRPCServer {
	log := logging.Component(logger, "grpc")

	auth := NewAuthInterceptor(cfg)
	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		auth.Unary(),
	)
	grpcServer := grpc.NewServer(append([]grpc.ServerOption{grpc.UnaryInterceptor(unary)}, opts...)...)

	grpcServer.RegisterService(&reservationServiceDesc, &reservationService{svcs: svcs, logger: log})

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(reservationServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	return &GRPCServer{
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		log:      log,
	}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
