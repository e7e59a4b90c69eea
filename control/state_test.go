package control

import (
	"math"
	"testing"
)

func TestPredictZeroLatencyIsIdentity(t *testing.T) {
	p := WorldPose{X: 3.2, Y: -1.7, Heading: 0.8, Speed: 12.5}
	got := Predict(p, 0.2, 0.5, 0, 2.67, 9.81)
	if got != p {
		t.Fatalf("Predict with dt=0 changed the state: %+v -> %+v", p, got)
	}
}

func TestPredictMatchesKinematicModel(t *testing.T) {
	p := WorldPose{X: 1, Y: 2, Heading: 0.3, Speed: 10}
	steer, throttle, dt, lf, g := 0.1, 0.5, 0.1, 2.67, 9.81

	got := Predict(p, steer, throttle, dt, lf, g)
	want := WorldPose{
		X:       1 + 10*math.Cos(0.3)*0.1,
		Y:       2 + 10*math.Sin(0.3)*0.1,
		Heading: 0.3 - 10/2.67*0.1*0.1,
		Speed:   10 + 0.5*9.81*0.1,
	}

	const tol = 1e-12
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol ||
		math.Abs(got.Heading-want.Heading) > tol || math.Abs(got.Speed-want.Speed) > tol {
		t.Fatalf("Predict = %+v, want %+v", got, want)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	poses := []WorldPose{
		{X: 0, Y: 0, Heading: 0},
		{X: 12.3, Y: -45.6, Heading: 1.1},
		{X: -7, Y: 3, Heading: -2.9},
		{X: 100, Y: 200, Heading: math.Pi},
	}
	wx := []float64{1, -2, 30.5, -41.2, 5.5}
	wy := []float64{-3, 4.4, 0, 17.8, -9.1}

	for _, p := range poses {
		lx, ly, err := ToVehicleFrame(p, wx, wy)
		if err != nil {
			t.Fatalf("ToVehicleFrame: %v", err)
		}
		bx, by := ToWorldFrame(p, lx, ly)
		for i := range wx {
			if math.Abs(bx[i]-wx[i]) > 1e-9 || math.Abs(by[i]-wy[i]) > 1e-9 {
				t.Errorf("pose %+v point %d: round trip (%g,%g) != (%g,%g)",
					p, i, bx[i], by[i], wx[i], wy[i])
			}
		}
	}
}

func TestTransformCentersPose(t *testing.T) {
	p := WorldPose{X: 5, Y: -2, Heading: 0.7}
	lx, ly, err := ToVehicleFrame(p, []float64{5}, []float64{-2})
	if err != nil {
		t.Fatalf("ToVehicleFrame: %v", err)
	}
	if math.Abs(lx[0]) > 1e-12 || math.Abs(ly[0]) > 1e-12 {
		t.Fatalf("pose position maps to (%g,%g), want origin", lx[0], ly[0])
	}
}

func TestTransformHeadingBecomesXAxis(t *testing.T) {
	p := WorldPose{X: 1, Y: 1, Heading: math.Pi / 4}
	// A point straight ahead of the vehicle.
	d := 3.0
	lx, ly, err := ToVehicleFrame(p,
		[]float64{1 + d*math.Cos(p.Heading)},
		[]float64{1 + d*math.Sin(p.Heading)})
	if err != nil {
		t.Fatalf("ToVehicleFrame: %v", err)
	}
	if math.Abs(lx[0]-d) > 1e-9 || math.Abs(ly[0]) > 1e-9 {
		t.Fatalf("ahead point maps to (%g,%g), want (%g,0)", lx[0], ly[0], d)
	}
}

func TestTransformRejectsEmptyWaypoints(t *testing.T) {
	_, _, err := ToVehicleFrame(WorldPose{}, nil, nil)
	if err == nil {
		t.Fatal("empty waypoints accepted")
	}
	if KindOf(err) != KindInputValidation {
		t.Fatalf("kind = %v, want input_validation", KindOf(err))
	}
}
