package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"mpc-drive-core/control"
)

// The simulator speaks socket.io-style text frames: a "42" prefix marks
// an event, followed by a JSON array of [name, payload]. Anything else
// (pings, handshakes) is ignored.
const eventPrefix = "42"

// telemetryMsg mirrors the simulator's telemetry payload.
type telemetryMsg struct {
	PtsX          []float64 `json:"ptsx"`
	PtsY          []float64 `json:"ptsy"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	Psi           float64   `json:"psi"`
	Speed         float64   `json:"speed"`
	SteeringAngle float64   `json:"steering_angle"`
	Throttle      float64   `json:"throttle"`
}

// steerMsg is the outbound command payload: normalized actuation plus
// the planned trajectory (green line) and transformed waypoints (yellow
// line), both in the vehicle frame.
type steerMsg struct {
	SteeringAngle float64   `json:"steering_angle"`
	Throttle      float64   `json:"throttle"`
	MpcX          []float64 `json:"mpc_x"`
	MpcY          []float64 `json:"mpc_y"`
	NextX         []float64 `json:"next_x"`
	NextY         []float64 `json:"next_y"`
}

// isEventFrame reports whether the raw frame carries an event at all;
// pings and handshake frames do not.
func isEventFrame(raw []byte) bool {
	return strings.HasPrefix(string(raw), eventPrefix)
}

// parseEvent extracts the event name and payload from a raw frame.
// ok is false for non-event frames, undecodable events, and events with
// a null payload (the simulator's manual-driving signal).
func parseEvent(raw []byte) (name string, payload json.RawMessage, ok bool) {
	s := string(raw)
	if !isEventFrame(raw) {
		return "", nil, false
	}
	body := s[len(eventPrefix):]

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(body), &arr); err != nil || len(arr) < 1 {
		return "", nil, false
	}
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, false
	}
	if len(arr) < 2 || string(arr[1]) == "null" {
		return name, nil, false
	}
	return name, arr[1], true
}

// encodeEvent renders an outbound event frame.
func encodeEvent(name string, payload any) ([]byte, error) {
	body, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	return append([]byte(eventPrefix), body...), nil
}

func (m telemetryMsg) toTelemetry() control.Telemetry {
	return control.Telemetry{
		WaypointsX:   m.PtsX,
		WaypointsY:   m.PtsY,
		X:            m.X,
		Y:            m.Y,
		Heading:      m.Psi,
		Speed:        m.Speed,
		LastSteering: m.SteeringAngle,
		LastThrottle: m.Throttle,
	}
}

func steerPayload(out control.CycleOutput) steerMsg {
	return steerMsg{
		SteeringAngle: out.Command.Steering,
		Throttle:      out.Command.Throttle,
		MpcX:          out.PredictedX,
		MpcY:          out.PredictedY,
		NextX:         out.ReferenceX,
		NextY:         out.ReferenceY,
	}
}
