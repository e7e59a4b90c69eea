package control

import "math"

// Predict advances the pose by dt seconds of the kinematic bicycle
// model under the last known command (steer in radians, throttle as an
// acceleration fraction of scale). The solved command only takes effect
// after the actuation latency; planning from the raw telemetry pose
// would chase a position the car has already left. A single Euler step
// is enough here: the loop depends on this compensation existing, not
// on its order of accuracy.
func Predict(p WorldPose, steer, throttle, dt, lf, scale float64) WorldPose {
	return WorldPose{
		X:       p.X + p.Speed*math.Cos(p.Heading)*dt,
		Y:       p.Y + p.Speed*math.Sin(p.Heading)*dt,
		Heading: p.Heading - p.Speed/lf*steer*dt,
		Speed:   p.Speed + throttle*scale*dt,
	}
}

// ToVehicleFrame re-expresses world waypoints in the frame centered at
// the pose with its heading as the +x axis: translate, then rotate by
// the negative heading.
func ToVehicleFrame(p WorldPose, wx, wy []float64) (lx, ly []float64, err error) {
	if len(wx) == 0 || len(wx) != len(wy) {
		return nil, nil, newError(KindInputValidation,
			"need matching non-empty waypoint slices, got %d/%d", len(wx), len(wy))
	}
	sin, cos := math.Sincos(-p.Heading)
	lx = make([]float64, len(wx))
	ly = make([]float64, len(wy))
	for i := range wx {
		dx := wx[i] - p.X
		dy := wy[i] - p.Y
		lx[i] = dx*cos - dy*sin
		ly[i] = dx*sin + dy*cos
	}
	return lx, ly, nil
}

// ToWorldFrame inverts ToVehicleFrame for the same pose.
func ToWorldFrame(p WorldPose, lx, ly []float64) (wx, wy []float64) {
	sin, cos := math.Sincos(p.Heading)
	wx = make([]float64, len(lx))
	wy = make([]float64, len(ly))
	for i := range lx {
		wx[i] = lx[i]*cos - ly[i]*sin + p.X
		wy[i] = lx[i]*sin + ly[i]*cos + p.Y
	}
	return wx, wy
}
