package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	config "github.com/xilidan/voicelink/config/meeting"
	serviceentity "github.com/xilidan/voicelink/services/engine/entity"
	meetingengine "github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/entity"
	pb "github.com/xilidan/voicelink/specs/proto/engine"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client implements the meeting engine interface on top of the engine RPC service.
type Client struct {
	conn *grpc.ClientConn
	pb.EngineServiceClient

	audio meetingengine.AudioSource
	log   *slog.Logger
}

func New(cfg *config.EngineConfig, audio meetingengine.AudioSource, log *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	address := fmt.Sprintf("%s:%d", cfg.Url, cfg.Port)
	return Dial(address, audio, log, opts...)
}

func Dial(address string, audio meetingengine.AudioSource, log *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc connection: %w", err)
	}
	log.Debug("engine client configured", slog.String("address", address))

	return &Client{
		conn:                conn,
		EngineServiceClient: pb.NewEngineServiceClient(conn),
		audio:               audio,
		log:                 log,
	}, nil
}

func (c *Client) Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error) {
	rc, _, err := c.audio.Open(ctx, ref.String())
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	req, err := pb.Encode(&serviceentity.ProcessRequest{
		MeetingID: ref.MeetingID(),
		Format:    format,
		Audio:     data,
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug("sending audio to engine service",
		slog.String("reference", ref.String()),
		slog.Int("size", len(data)))
	resp, err := c.EngineServiceClient.Process(ctx, req)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, fmt.Errorf("engine rpc %s: %s", st.Code(), st.Message())
		}
		return nil, fmt.Errorf("engine rpc: %w", err)
	}

	var res entity.EngineResult
	if err := pb.Decode(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping calls HealthCheck and reports whether the service answered healthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.HealthCheck(ctx, &structpb.Struct{})
	if err != nil {
		return fmt.Errorf("engine health check: %w", err)
	}
	var health serviceentity.HealthCheckResponse
	if err := pb.Decode(resp, &health); err != nil {
		return err
	}
	if !health.Status {
		return fmt.Errorf("engine service reports unhealthy")
	}
	return nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
