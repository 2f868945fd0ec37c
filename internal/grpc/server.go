package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/oriys/halo/internal/calltracker"
	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Server exposes the dispatcher over gRPC.
type Server struct {
	dispatcher *dispatch.Dispatcher
	server     *grpc.Server
}

// NewServer creates a gRPC server around the dispatcher.
func NewServer(d *dispatch.Dispatcher) *Server {
	return &Server{dispatcher: d}
}

// Start opens the listener and serves in the background.
func (s *Server) Start(kind, addr string) error {
	lis, err := Listen(kind, addr)
	if err != nil {
		return err
	}
	s.start(lis)
	logging.Op().Info("grpc server started", "listener", lis.Addr().String())
	return nil
}

func (s *Server) start(lis net.Listener) {
	s.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metricsInterceptor,
			loggingInterceptor,
			recoveryInterceptor,
			statusInterceptor,
		),
	)
	RegisterDispatchServer(s.server, s)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s.server)

	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("grpc server error", "error", err)
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

// Invoke runs a synchronous invocation and returns its settled outcome.
func (s *Server) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeReply, error) {
	if req.Operation == "" {
		return nil, status.Error(codes.InvalidArgument, "operation name is required")
	}

	ctx = observability.InjectTraceContext(ctx, req.TraceContext)
	res, err := s.dispatcher.Dispatch(ctx, req.Operation, req.Inputs, req.Correlation)
	if err != nil {
		return nil, dispatchStatus(err)
	}
	return replyFromOutcome(res.Outcome, res.Correlation), nil
}

// Begin starts an asynchronous invocation and returns its call token.
func (s *Server) Begin(ctx context.Context, req *BeginRequest) (*BeginReply, error) {
	if req.Operation == "" {
		return nil, status.Error(codes.InvalidArgument, "operation name is required")
	}

	ctx = observability.InjectTraceContext(ctx, req.TraceContext)
	// The call outlives the RPC, so detach it from the request lifetime.
	token, err := s.dispatcher.Begin(context.WithoutCancel(ctx), req.Operation, req.Inputs, req.Correlation)
	if err != nil {
		return nil, dispatchStatus(err)
	}
	return &BeginReply{Token: token}, nil
}

// Result reports the state of an asynchronous call. With Wait set it
// blocks until the call settles or the request context ends.
func (s *Server) Result(ctx context.Context, req *ResultRequest) (*ResultReply, error) {
	if req.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "call token is required")
	}

	var (
		st  dispatch.CallStatus
		err error
	)
	if req.Wait {
		st, err = s.dispatcher.Await(ctx, req.Token)
	} else {
		st, err = s.dispatcher.Status(req.Token)
	}
	if err != nil {
		return nil, dispatchStatus(err)
	}

	reply := &ResultReply{
		Token:     st.Token,
		Operation: st.Operation,
		Settled:   st.Settled,
	}
	if st.Outcome != nil {
		reply.Result = replyFromOutcome(*st.Outcome, st.Correlation)
	}
	return reply, nil
}

// ListOperations returns the bound operations.
func (s *Server) ListOperations(ctx context.Context, req *ListOperationsRequest) (*ListOperationsReply, error) {
	return &ListOperationsReply{Operations: s.dispatcher.Operations()}, nil
}

// dispatchStatus maps dispatcher errors onto gRPC status codes.
func dispatchStatus(err error) error {
	switch {
	case errors.Is(err, dispatch.ErrUnknownOperation), errors.Is(err, dispatch.ErrUnknownToken):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, dispatch.ErrOperationDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, calltracker.ErrFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
