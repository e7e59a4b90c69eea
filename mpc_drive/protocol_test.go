package main

import (
	"encoding/json"
	"strings"
	"testing"

	"mpc-drive-core/control"
)

const sampleTelemetry = `42["telemetry",{"ptsx":[-32.16,-43.49],"ptsy":[113.36,105.94],` +
	`"psi":3.73,"x":-40.62,"y":108.73,"speed":10.5,"steering_angle":0.05,"throttle":0.3}]`

func TestParseTelemetryEvent(t *testing.T) {
	name, payload, ok := parseEvent([]byte(sampleTelemetry))
	if !ok || name != "telemetry" {
		t.Fatalf("parseEvent: name=%q ok=%v", name, ok)
	}

	var msg telemetryMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	tel := msg.toTelemetry()
	if len(tel.WaypointsX) != 2 || tel.WaypointsX[0] != -32.16 {
		t.Errorf("waypoints = %v", tel.WaypointsX)
	}
	if tel.Heading != 3.73 || tel.Speed != 10.5 {
		t.Errorf("pose = %+v", tel)
	}
	if tel.LastSteering != 0.05 || tel.LastThrottle != 0.3 {
		t.Errorf("last actuation = %g/%g", tel.LastSteering, tel.LastThrottle)
	}
}

func TestParseNullPayloadIsManual(t *testing.T) {
	name, _, ok := parseEvent([]byte(`42["telemetry",null]`))
	if ok {
		t.Fatal("null payload reported ok")
	}
	if name != "telemetry" {
		t.Fatalf("name = %q", name)
	}
}

// Frames that fail to parse split two ways: event frames (42 prefix)
// get the manual reply, everything else is dropped silently.
func TestUnusableFrameClassification(t *testing.T) {
	cases := []struct {
		raw    string
		manual bool
	}{
		{"", false},
		{"40", false},
		{"3", false},
		{"2", false},
		{"42garbage", true},
		{"42[]", true},
		{`42["telemetry",{bad json`, true},
		{`42["telemetry",null]`, true},
	}
	for _, c := range cases {
		if _, _, ok := parseEvent([]byte(c.raw)); ok {
			t.Errorf("frame %q parsed as a usable event", c.raw)
		}
		if got := isEventFrame([]byte(c.raw)); got != c.manual {
			t.Errorf("isEventFrame(%q) = %v, want %v", c.raw, got, c.manual)
		}
	}
}

func TestEncodeSteerEvent(t *testing.T) {
	out := control.CycleOutput{
		Command:    control.Command{Steering: -0.12, Throttle: 0.4},
		PredictedX: []float64{0, 1},
		PredictedY: []float64{0, 0.1},
		ReferenceX: []float64{0, 2},
		ReferenceY: []float64{0, 0},
	}
	frame, err := encodeEvent("steer", steerPayload(out))
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	s := string(frame)
	if !strings.HasPrefix(s, `42["steer",`) {
		t.Fatalf("frame = %s", s)
	}

	name, payload, ok := parseEvent(frame)
	if !ok || name != "steer" {
		t.Fatalf("round trip: name=%q ok=%v", name, ok)
	}
	var msg steerMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("round trip decode: %v", err)
	}
	if msg.SteeringAngle != -0.12 || msg.Throttle != 0.4 || len(msg.MpcX) != 2 {
		t.Errorf("round trip payload = %+v", msg)
	}
}

func TestFailurePolicies(t *testing.T) {
	last := control.Command{Steering: 0.3, Throttle: 0.5}

	if got := PolicyHold.fallbackCommand(last); got != last {
		t.Errorf("hold policy = %+v, want %+v", got, last)
	}
	want := control.Command{Steering: 0, Throttle: -1}
	if got := PolicyStop.fallbackCommand(last); got != want {
		t.Errorf("stop policy = %+v, want %+v", got, want)
	}

	if _, err := parsePolicy("swerve"); err == nil {
		t.Error("unknown policy accepted")
	}
	if p, err := parsePolicy("hold"); err != nil || p != PolicyHold {
		t.Errorf("parsePolicy(hold) = %v, %v", p, err)
	}
}
