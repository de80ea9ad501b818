package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/engine/consts"
	"github.com/xilidan/voicelink/services/engine/entity"
	"github.com/xilidan/voicelink/services/engine/usecase"
	meeting "github.com/xilidan/voicelink/services/meeting/entity"
	pb "github.com/xilidan/voicelink/specs/proto/engine"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	usecase       usecase.Usecase
	log           *slog.Logger
	maxAudioBytes int64
}

func NewServerOptions(usecase usecase.Usecase, log *slog.Logger, maxAudioBytes int64) *Server {
	if maxAudioBytes <= 0 {
		maxAudioBytes = consts.DefaultMaxAudioBytes
	}
	return &Server{
		usecase:       usecase,
		log:           log,
		maxAudioBytes: maxAudioBytes,
	}
}

func (s *Server) NewServer(opts ...grpc.ServerOption) (*grpc.Server, error) {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(consts.MaxMessageSize(s.maxAudioBytes)),
		grpc.UnaryInterceptor(s.withLogger),
	}, opts...)

	srv := grpc.NewServer(opts...)
	pb.RegisterEngineServiceServer(srv, s)
	return srv, nil
}

func (s *Server) withLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	log := s.log.With(slog.String("method", info.FullMethod))
	return handler(logger.WithContext(ctx, log), req)
}

func (s *Server) HealthCheck(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return pb.Encode(&entity.HealthCheckResponse{
		Status: true,
		Kind:   s.usecase.Kind(),
	})
}

func (s *Server) Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in entity.ProcessRequest
	if err := pb.Decode(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.usecase.Process(ctx, &in)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := pb.Encode(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	var payloadErr *meeting.PayloadError
	switch {
	case errors.As(err, &payloadErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
