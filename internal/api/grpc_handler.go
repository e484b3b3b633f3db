package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"synctree/internal/domain"
	"synctree/internal/logging"
	"synctree/internal/service"
	"synctree/internal/store"
)

// SyncServiceName is the fully qualified gRPC service name.
const SyncServiceName = "synctree.v1.SyncService"

// SyncServiceServer is the server API for the sync service. Requests and responses are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type SyncServiceServer interface {
	SyncPart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LookupPart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resync(*structpb.Struct, grpc.ServerStream) error
}

// SyncServiceDesc describes the service for grpc.Server.RegisterService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SyncPart", Handler: syncPartHandler},
		{MethodName: "LookupPart", Handler: lookupPartHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Resync", Handler: resyncHandler, ServerStreams: true},
	},
	Metadata: "synctree/v1/sync.proto",
}

// RegisterSyncServiceServer registers srv on s.
func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

func unaryHandler(method string, call func(SyncServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SyncServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	syncPartHandler   = unaryHandler("SyncPart", SyncServiceServer.SyncPart)
	lookupPartHandler = unaryHandler("LookupPart", SyncServiceServer.LookupPart)
)

func resyncHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SyncServiceServer).Resync(in, stream)
}

// GRPCHandler implements SyncServiceServer on top of the sync service.
type GRPCHandler struct {
	syncer Syncer
	logger *zap.Logger
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(syncer Syncer, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{syncer: syncer, logger: logger.Named("grpc")}
}

// --- Helper: Error Mapping ---

func (s *GRPCHandler) mapServiceErrorToGrpcStatus(err error, partNumber string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, service.ErrUnknownSupplier):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, service.ErrPartNotFound):
		return status.Errorf(codes.NotFound, "part %q not found", partNumber)
	case errors.Is(err, domain.ErrMissingIdentity):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, store.ErrUnavailable):
		s.logger.Warn("inventory unavailable", logging.PartField(partNumber), zap.Error(err))
		return status.Errorf(codes.Unavailable, "inventory server unavailable")
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	default:
		s.logger.Error("sync failed", logging.PartField(partNumber), zap.Error(err))
		return status.Errorf(codes.Internal, "failed to process part %q: %v", partNumber, err)
	}
}

// toStruct converts any JSON-serialisable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func supplierField(req *structpb.Struct) (string, error) {
	supplier, ok := normalizeSupplier(stringField(req, "supplier"))
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "supplier must be 'digikey' or 'mouser'")
	}
	return supplier, nil
}

// --- SyncServiceServer Implementation ---

func (s *GRPCHandler) SyncPart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	partNumber := stringField(req, "part_number")
	if partNumber == "" {
		return nil, status.Errorf(codes.InvalidArgument, "part_number is required")
	}
	supplier, err := supplierField(req)
	if err != nil {
		return nil, err
	}

	result, err := s.syncer.SyncPart(ctx, partNumber, supplier)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(err, partNumber)
	}
	return toStruct(result)
}

func (s *GRPCHandler) LookupPart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	partNumber := stringField(req, "part_number")
	if partNumber == "" {
		return nil, status.Errorf(codes.InvalidArgument, "part_number is required")
	}
	supplier, err := supplierField(req)
	if err != nil {
		return nil, err
	}

	key, info, err := s.syncer.GetPartFromSupplier(ctx, partNumber, supplier)
	if err != nil {
		return nil, s.mapServiceErrorToGrpcStatus(err, partNumber)
	}
	return toStruct(LookupResponse{Supplier: key, Part: info})
}

// Resync sends one message per resynced supplier part.
func (s *GRPCHandler) Resync(req *structpb.Struct, stream grpc.ServerStream) error {
	supplier, err := supplierField(req)
	if err != nil {
		return err
	}

	var summary domain.ResyncSummary
	for st := range s.syncer.ResyncAll(stream.Context(), supplier) {
		summary.Add(st)
		msg, err := toStruct(st)
		if err != nil {
			return status.Errorf(codes.Internal, "encode status: %v", err)
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	s.logger.Info("resync stream finished", zap.Int("total", summary.Total), zap.Int("updated", summary.Updated))
	return nil
}
