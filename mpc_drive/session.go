package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"

	"mpc-drive-core/control"
)

// session is one connected simulator: a pipeline plus the socket it
// answers on. One telemetry message triggers exactly one cycle and one
// reply; the loop is synchronous by design.
type session struct {
	srv      *Server
	conn     *websocket.Conn
	pipeline *control.Pipeline
}

func newSession(srv *Server, conn *websocket.Conn) (*session, error) {
	p, err := control.NewPipeline(srv.Config, srv.Log)
	if err != nil {
		return nil, err
	}
	return &session{srv: srv, conn: conn, pipeline: p}, nil
}

func (s *session) serve(ctx context.Context) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.srv.Log.Trace("RX %s", data)

		name, payload, ok := parseEvent(data)
		if !ok {
			// Any event frame without a usable payload (null or
			// undecodable) means the simulator is driving manually.
			if isEventFrame(data) {
				s.reply(ctx, "manual", struct{}{})
			}
			continue
		}
		if name != "telemetry" {
			continue
		}

		var msg telemetryMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.srv.Log.Warn("Telemetry decode failed: %v", err)
			s.reply(ctx, "manual", struct{}{})
			continue
		}

		out, err := s.pipeline.Cycle(msg.toTelemetry())
		if err != nil {
			// No command was produced; apply the configured policy
			// rather than silently reusing stale output.
			kind := control.KindOf(err)
			cmd := s.srv.Policy.fallbackCommand(s.pipeline.LastCommand())
			s.srv.Log.Warn("Cycle failed (%s), policy command steer=%.3f throttle=%.3f: %v",
				kind, cmd.Steering, cmd.Throttle, err)
			out = control.CycleOutput{Command: cmd}
		}

		// Emulates transport/actuation delay in simulation. This is a
		// scheduling knob; the model-side latency lives in the config.
		if s.srv.ActuationDelay > 0 {
			select {
			case <-time.After(s.srv.ActuationDelay):
			case <-ctx.Done():
				return
			}
		}

		s.reply(ctx, "steer", steerPayload(out))

		if s.srv.Mirror != nil {
			s.srv.Mirror.Send(ctx, out.Command)
		}
	}
}

func (s *session) reply(ctx context.Context, event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		s.srv.Log.Error("Encode failed: %v", err)
		return
	}
	if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		s.srv.Log.Error("TX failed: %v", err)
	}
}
