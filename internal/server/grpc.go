package server

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/orchestrator/activity"
	"github.com/fntranslate/livetranslate/internal/trace"
)

// Service names reported over gRPC.
const (
	PipelineService = "livetranslate.Pipeline"
	ControlService  = "livetranslate.Control"
)

// GRPCServer serves the standard health protocol and a small control service for
// clients that prefer gRPC to the HTTP surface.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
}

// NewGRPC creates the gRPC server with the trace interceptor, health and control services.
func NewGRPC(p Pipeline) *GRPCServer {
	srv := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv.RegisterService(&controlServiceDesc, &control{pipeline: p})
	return &GRPCServer{srv: srv, health: hs}
}

// SetServing flips the pipeline and overall status.
func (g *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(PipelineService, st)
	g.health.SetServingStatus("", st)
}

// Serve blocks serving on lis.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.srv.Serve(lis)
}

// Watch keeps health in step with the pipeline: serving until done closes.
func (g *GRPCServer) Watch(ctx context.Context, done <-chan struct{}) {
	g.SetServing(true)
	select {
	case <-ctx.Done():
	case <-done:
	}
	g.SetServing(false)
}

// Stop drains in-flight calls and stops the server.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}

// controlServer is the handler type the service descriptor dispatches to.
type controlServer interface {
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Activity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// control exposes the pipeline with google.protobuf.Struct messages, so no generated
// code is needed. Errors are AppErrors; grpc turns them into statuses via GRPCStatus.
type control struct {
	pipeline Pipeline
}

func (c *control) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := c.pipeline.Status()
	out, err := structpb.NewStruct(map[string]any{
		"running":    st.Running,
		"state":      st.State,
		"diff":       st.Diff,
		"tracked":    st.Tracked,
		"cycles":     float64(st.Cycles),
		"resets":     float64(st.Resets),
		"last_error": st.LastError,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode status")
	}
	return out, nil
}

func (c *control) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c.pipeline.Reset()
	trace.Logger(ctx).Info("manual reset requested", "via", "grpc")
	return structpb.NewStruct(map[string]any{"status": "reset_requested"})
}

func (c *control) Activity(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	kind := fields["kind"].GetStringValue()
	if kind != activity.KindKey && kind != activity.KindScroll {
		return nil, apperrors.Newf(apperrors.InvalidArgument, "unknown activity kind %q", kind).
			WithMetadata("kind", kind)
	}
	ev := activity.Event{Kind: kind, Key: fields["key"].GetStringValue()}
	return structpb.NewStruct(map[string]any{"reset": c.pipeline.Activity(ev)})
}

func controlHandler(call func(controlServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(controlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ControlService + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(controlServer), ctx, req.(*structpb.Struct))
		})
	}
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlService,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: controlHandler(controlServer.Status, "Status")},
		{MethodName: "Reset", Handler: controlHandler(controlServer.Reset, "Reset")},
		{MethodName: "Activity", Handler: controlHandler(controlServer.Activity, "Activity")},
	},
	Metadata: "google/protobuf/struct.proto",
}
