// Package api provides the gRPC sensor service over the registry.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/auth"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/schema"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// DefaultWatchBuffer is the per-stream event buffer when unset.
const DefaultWatchBuffer = 256

// SensorService implements SensorServiceServer.
// Thin layer over the registry; it never mutates sensor state.
type SensorService struct {
	reg         *registry.Registry
	logger      *slog.Logger
	watchBuffer int
	dropped     atomic.Uint64
	done        chan struct{}
	closeOnce   sync.Once
}

// NewSensorService creates service instance with dependencies.
func NewSensorService(reg *registry.Registry, watchBuffer int, logger *slog.Logger) (*SensorService, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if watchBuffer <= 0 {
		watchBuffer = DefaultWatchBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SensorService{
		reg:         reg,
		logger:      logger,
		watchBuffer: watchBuffer,
		done:        make(chan struct{}),
	}, nil
}

// Close ends every open WatchEvents stream so a graceful stop does not wait
// on watchers.
func (s *SensorService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Dropped returns the number of events discarded because a watcher fell behind.
func (s *SensorService) Dropped() uint64 { return s.dropped.Load() }

// ListSensors returns {"sensors": [...]} for instances matching the optional
// "sensorType" and "instance" request fields.
func (s *SensorService) ListSensors(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter, err := parseFilter(req)
	if err != nil {
		return nil, err
	}

	var sensors []interface{}
	for _, snap := range s.reg.Snapshots() {
		if filter.match(snap.Key) {
			sensors = append(sensors, SnapshotMap(snap))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	out, err := structpb.NewStruct(map[string]interface{}{"sensors": sensors})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// WatchEvents streams registry events matching the request filter until the
// client goes away. Events a slow client cannot take are dropped and counted.
func (s *SensorService) WatchEvents(req *structpb.Struct, stream SensorService_WatchEventsServer) error {
	filter, err := parseFilter(req)
	if err != nil {
		return err
	}

	ctx := stream.Context()
	client := auth.KeyNameFromContext(ctx)

	events := make(chan registry.Event, s.watchBuffer)
	var dropped atomic.Uint64
	id := s.reg.Subscribe(func(ev registry.Event) {
		if !filter.match(ev.Key()) {
			return
		}
		select {
		case events <- ev:
		default:
			dropped.Add(1)
			s.dropped.Add(1)
		}
	})
	defer func() {
		s.reg.Unsubscribe(id)
		s.logger.Debug("watch ended", "client", client, "dropped", dropped.Load())
	}()

	// Header marks the subscription as live
	if err := stream.SendHeader(metadata.Pairs("x-bmad-subscribed", "true")); err != nil {
		return err
	}
	s.logger.Debug("watch started", "client", client, "sensorType", filter.sensorType)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return status.Error(codes.Unavailable, "server shutting down")
		case ev := <-events:
			msg, err := EventStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// parseFilter validates the optional request filter.
func parseFilter(req *structpb.Struct) (sensorFilter, error) {
	var f sensorFilter
	if req == nil {
		return f, nil
	}
	fields := req.GetFields()

	if v, ok := fields["sensorType"]; ok {
		st := types.SensorType(v.GetStringValue())
		if !schema.Known(st) {
			return f, status.Errorf(codes.InvalidArgument, "unknown sensor type %q", v.GetStringValue())
		}
		f.sensorType = st
	}
	if v, ok := fields["instance"]; ok {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum || n.NumberValue < 0 || n.NumberValue > math.MaxUint32 || n.NumberValue != math.Trunc(n.NumberValue) {
			return f, status.Error(codes.InvalidArgument, "instance must be a non-negative integer")
		}
		inst := uint32(n.NumberValue)
		f.instance = &inst
	}
	return f, nil
}

var _ SensorServiceServer = (*SensorService)(nil)
