package control

// Telemetry is one decoded inbound message from the simulator: global
// waypoints ahead of the car, world-frame pose, speed in mph, and the
// actuation the simulator last saw applied.
type Telemetry struct {
	WaypointsX   []float64
	WaypointsY   []float64
	X            float64
	Y            float64
	Heading      float64
	Speed        float64
	LastSteering float64 // radians
	LastThrottle float64 // fraction
}

// Command is the normalized actuator output: steering and throttle in
// [-1, 1], negative throttle braking.
type Command struct {
	Steering float64
	Throttle float64
}

// CycleOutput is everything one successful cycle produces: the command
// plus the planned trajectory and the transformed reference, both in
// the vehicle-local frame, for display.
type CycleOutput struct {
	Command    Command
	PredictedX []float64
	PredictedY []float64
	ReferenceX []float64
	ReferenceY []float64
}

// WorldPose is the vehicle pose and speed in the world frame.
type WorldPose struct {
	X       float64
	Y       float64
	Heading float64
	Speed   float64
}
