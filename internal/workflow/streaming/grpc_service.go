package streaming

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	telemetryServiceName = "rig.v1.Telemetry"
	watchMethod          = "/" + telemetryServiceName + "/Watch"
)

// TelemetryServer streams every live event as a google.protobuf.Struct.
type TelemetryServer interface {
	Watch(req *emptypb.Empty, stream grpc.ServerStream) error
}

var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: telemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rig/v1/telemetry.proto",
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TelemetryServer).Watch(req, stream)
}

func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

type TelemetryService struct {
	streamer *EventStreamer
}

func NewTelemetryService(streamer *EventStreamer) *TelemetryService {
	return &TelemetryService{streamer: streamer}
}

func (s *TelemetryService) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	eventCh := s.streamer.Subscribe()
	defer s.streamer.Unsubscribe(eventCh)

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return nil
			}

			msg, err := event.Struct()
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

// Struct converts the event through its JSON form.
func (e *Event) Struct() (*structpb.Struct, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return structpb.NewStruct(fields)
}

// WatchClient receives events from a remote Telemetry service.
type WatchClient struct {
	stream grpc.ClientStream
}

func Watch(ctx context.Context, conn grpc.ClientConnInterface) (*WatchClient, error) {
	stream, err := conn.NewStream(ctx, &TelemetryServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: stream}, nil
}

func (w *WatchClient) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EventFromStruct is the inverse of Event.Struct.
func EventFromStruct(s *structpb.Struct) (*Event, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode struct: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}
