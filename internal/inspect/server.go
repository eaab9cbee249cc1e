package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/nixpig/bgjobs/internal/auth"
	"github.com/nixpig/bgjobs/internal/background"
	"github.com/nixpig/bgjobs/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Supervisor is the part of background.Supervisor the service exposes.
type Supervisor interface {
	StartCommand(cmdline string, skipErrors bool) (*background.Job, error)
	Jobs() []background.JobInfo
	HasActiveOperations() bool
}

// Server serves the job service for a Supervisor.
type Server struct {
	supervisor Supervisor
	logger     *slog.Logger
	grpcServer *grpc.Server
}

// NewServer creates a Server. tlsCfg holds the server's certificate paths.
func NewServer(
	supervisor Supervisor,
	logger *slog.Logger,
	tlsCfg *tlsconfig.Config,
) (*Server, error) {
	tlsCreds, err := loadTLSCreds(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("load TLS credentials: %w", err)
	}

	s := &Server{supervisor: supervisor, logger: logger}

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			contextCheckUnaryInterceptor,
			s.authUnaryInterceptor,
		),
		grpc.Creds(tlsCreds),
	)

	RegisterJobServiceServer(s.grpcServer, s)

	return s, nil
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("inspection server listening", "addr", listener.Addr().String())

	return s.grpcServer.Serve(listener)
}

// Shutdown stops accepting connections and waits for in-flight calls.
func (s *Server) Shutdown() {
	s.grpcServer.GracefulStop()
}

func (s *Server) StartCommand(
	ctx context.Context,
	req *structpb.Struct,
) (*wrapperspb.StringValue, error) {
	fields := req.GetFields()

	cmdline := fields["cmdline"].GetStringValue()
	if strings.TrimSpace(cmdline) == "" {
		return nil, status.Error(codes.InvalidArgument, "cmdline is empty")
	}

	job, err := s.supervisor.StartCommand(cmdline, fields["skip_errors"].GetBoolValue())
	if err != nil {
		return nil, s.mapError("start command", err)
	}

	return wrapperspb.String(job.ID()), nil
}

func (s *Server) ListJobs(
	ctx context.Context,
	_ *emptypb.Empty,
) (*structpb.ListValue, error) {
	infos := s.supervisor.Jobs()

	jobs := make([]any, 0, len(infos))
	for _, info := range infos {
		jobs = append(jobs, jobFields(info))
	}

	list, err := structpb.NewList(jobs)
	if err != nil {
		return nil, s.mapError("list jobs", err)
	}

	return list, nil
}

func (s *Server) HasActiveOperations(
	ctx context.Context,
	_ *emptypb.Empty,
) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.supervisor.HasActiveOperations()), nil
}

// mapError translates background errors to gRPC errors.
func (s *Server) mapError(logMsg string, err error) error {
	switch {
	case errors.Is(err, background.ErrEmptyCommand):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, background.ErrJobNotFound):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.NotFound, err.Error())

	case errors.As(err, new(*background.LaunchError)):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.As(err, new(background.InvalidStateError)):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		s.logger.Error(logMsg, "err", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

// loadTLSCreds creates the gRPC transport credentials with mTLS enabled.
func loadTLSCreds(tlsCfg *tlsconfig.Config) (credentials.TransportCredentials, error) {
	cfg := *tlsCfg
	cfg.Server = true

	tlsConfig, err := tlsconfig.SetupTLS(&cfg)
	if err != nil {
		return nil, err
	}

	return credentials.NewTLS(tlsConfig), nil
}

func (s *Server) authUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if err := s.authorise(ctx, info.FullMethod); err != nil {
		return nil, err
	}

	return handler(ctx, req)
}

func (s *Server) authorise(ctx context.Context, method string) error {
	cn, ou, err := auth.GetClientIdentity(ctx)
	if err != nil {
		s.logger.Warn("failed to get client identity", "err", err)
		return status.Error(codes.Unauthenticated, "not authenticated")
	}

	role := auth.Role(ou)

	if err := auth.IsAuthorised(role, method); err != nil {
		s.logger.Warn(
			"failed to authorise client",
			"cn", cn,
			"role", role,
			"method", method,
			"err", err,
		)

		return status.Error(codes.PermissionDenied, "not authorised")
	}

	s.logger.Debug("authorised client request", "cn", cn, "role", role, "method", method)

	return nil
}

// contextCheckUnaryInterceptor rejects requests with a cancelled context.
func contextCheckUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return handler(ctx, req)
}
