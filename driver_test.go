package scrc

import (
	"github.com/jd3nn1s/scrc/scrmsg"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type sensors struct {
	angle, trackPos    float64
	speed, rpm         float64
	gear               int
	ahead, left, right float64
}

func (s sensors) msg() string {
	track := make([]float64, TrackSensors)
	for i := range track {
		track[i] = 20
	}
	track[trackLeft] = s.left
	track[trackRight] = s.right
	track[trackAhead] = s.ahead
	return scrmsg.Stringify(
		scrmsg.Floats("angle", s.angle),
		scrmsg.Floats("trackPos", s.trackPos),
		scrmsg.Floats("speedX", s.speed),
		scrmsg.Floats("rpm", s.rpm),
		scrmsg.Ints("gear", s.gear),
		scrmsg.Floats("track", track...),
	)
}

func drive(t *testing.T, d *Driver, s sensors) {
	t.Helper()
	_, ok := d.Drive(s.msg())
	require.True(t, ok)
}

func TestRangefinderAngles(t *testing.T) {
	a := RangefinderAngles()
	assert.Equal(t, [TrackSensors]float64{
		-90, -75, -60, -45, -30, -20, -15, -10, -5, 0,
		5, 10, 15, 20, 30, 45, 60, 75, 90,
	}, a)
	for i := 0; i < TrackSensors; i++ {
		assert.Equal(t, -a[i], a[TrackSensors-1-i])
	}
}

func TestInit(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	assert.Equal(t, "(init -90 -75 -60 -45 -30 -20 -15 -10 -5 0 5 10 15 20 30 45 60 75 90)", d.Init())
}

func TestDriveIgnoresGarbage(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	out, ok := d.Drive("garbage")
	assert.False(t, ok)
	assert.Empty(t, out)
	assert.Equal(t, CarControl{}, d.Control)
}

func TestSteering(t *testing.T) {
	cfg := DefaultDriverConfig()
	tests := []struct {
		name     string
		s        sensors
		nearWall bool
	}{
		{"open track", sensors{angle: 0.2, trackPos: -0.1, left: 10, right: 10, ahead: 100}, false},
		{"right wall near", sensors{angle: 0.2, trackPos: -0.1, left: 10, right: 7.4, ahead: 100}, true},
		{"left wall near", sensors{angle: -0.1, trackPos: 0.3, left: 2, right: 12, ahead: 100}, true},
		{"boundary is open", sensors{angle: 0.1, trackPos: 0.05, left: 7.5, right: 7.5, ahead: 100}, false},
		{"saturates", sensors{angle: 1.5, trackPos: -0.9, left: 1, right: 1, ahead: 100}, true},
	}
	for _, tt := range tests {
		d := NewDriver(cfg)
		drive(t, d, tt.s)
		angle := tt.s.angle
		if tt.nearWall {
			angle *= 1.5
		}
		want := clamp((angle-tt.s.trackPos)/cfg.SteerLock, -1, 1)
		assert.InDelta(t, want, d.Control.Steer(), 1e-12, tt.name)
	}
}

func TestGearUpshift(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{rpm: 5000, gear: 3, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 3, d.Control.Gear())

	drive(t, d, sensors{rpm: 6500, gear: 3, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 4, d.Control.Gear())
}

func TestGearFallingAboveDownshift(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{rpm: 6500, gear: 3, ahead: 100, left: 10, right: 10})
	drive(t, d, sensors{rpm: 6000, gear: 3, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 3, d.Control.Gear())
}

func TestGearDownshift(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{rpm: 2500, gear: 3, ahead: 100, left: 10, right: 10})
	drive(t, d, sensors{rpm: 1800, gear: 3, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 2, d.Control.Gear())
}

func TestGearFirstTickIsUpshiftTrend(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{rpm: 6100, gear: 2, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 3, d.Control.Gear())
}

func TestGearEqualRPMIsNotRising(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{rpm: 1500, gear: 2, ahead: 100, left: 10, right: 10})
	drive(t, d, sensors{rpm: 1500, gear: 2, ahead: 100, left: 10, right: 10})
	assert.Equal(t, 1, d.Control.Gear())
}

func TestGearBounds(t *testing.T) {
	cfg := DefaultDriverConfig()

	d := NewDriver(cfg)
	// neutral at idle is lifted into first gear
	drive(t, d, sensors{rpm: 900, gear: 0, ahead: 100, left: 10, right: 10})
	assert.Equal(t, cfg.MinGear, d.Control.Gear())
	drive(t, d, sensors{rpm: 800, gear: 1, ahead: 100, left: 10, right: 10})
	assert.Equal(t, cfg.MinGear, d.Control.Gear())

	d = NewDriver(cfg)
	drive(t, d, sensors{rpm: 7000, gear: cfg.MaxGear, ahead: 100, left: 10, right: 10})
	assert.Equal(t, cfg.MaxGear, d.Control.Gear())
}

func TestGearMissingDefaultsToZero(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	_, ok := d.Drive("(rpm 6500)(speedX 10)")
	require.True(t, ok)
	assert.Equal(t, 1, d.Control.Gear(), "0 + 1 upshift")
}

func TestScenarioA(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	s := sensors{speed: 50, left: 10, right: 10, ahead: 120, rpm: 3000, gear: 2}
	for i := 1; i <= 5; i++ {
		drive(t, d, s)
		assert.Equal(t, 0.0, d.Control.Steer())
		assert.InDelta(t, 0.1*float64(i), d.Control.Accel(), 1e-9)
		assert.Equal(t, 0.0, d.Control.Brake())
		assert.False(t, d.Braking())
	}
}

func TestScenarioB(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	s := sensors{ahead: 150, right: 5, left: 20, speed: 95, trackPos: 0.2, angle: 0}

	z, brake := matchZone(&d.State, false)
	assert.Nil(t, z, "empty state matches nothing")
	assert.Equal(t, 0.0, brake)

	drive(t, d, s)
	assert.True(t, d.Braking())
	assert.Equal(t, 0.4, d.Control.Brake())
	// target speed is pinned to max speed so the integrator backs off to 0.2
	assert.Equal(t, 0.2, d.Control.Accel())
}

func TestBrakingLatchSkipsSpeedingLadder(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	s := sensors{ahead: 150, right: 5, left: 5, speed: 95, trackPos: 0.2}

	drive(t, d, s)
	require.True(t, d.Braking())

	d.State.SetFromMsg(s.msg())
	z, _ := matchZone(&d.State, true)
	assert.Nil(t, z, "latched sub-160 band does not fall through to the speeding ladder")

	// with no ladder matching the latch is released, then re-armed
	drive(t, d, s)
	assert.False(t, d.Braking())
	assert.Equal(t, 0.0, d.Control.Brake())
	drive(t, d, s)
	assert.True(t, d.Braking())
	assert.Equal(t, 0.4, d.Control.Brake())
}

func TestTopBandRefiresWhileLatched(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{ahead: 130, right: 5, left: 5, speed: 95, trackPos: 0.2})
	require.True(t, d.Braking())
	assert.Equal(t, 0.75, d.Control.Brake())

	drive(t, d, sensors{ahead: 170, right: 5, left: 5, speed: 95, trackPos: 0.2})
	assert.True(t, d.Braking())
	assert.Equal(t, 0.0, d.Control.Brake())
	assert.Equal(t, 0.2, d.Control.Accel())
}

func TestBrakingLadderBands(t *testing.T) {
	tests := []struct {
		ahead float64
		brake float64
	}{
		{170, 0}, {160, 0.4}, {141, 0.4}, {140, 0.75}, {110, 0.75},
		{90, 0.75}, {61, 0.75}, {60, 0.8}, {5, 0.8},
	}
	for _, tt := range tests {
		s := CarState{SpeedX: 81, TrackPos: 0.1}
		s.Track[trackRight] = 7.4
		s.Track[trackLeft] = 50
		s.Track[trackAhead] = tt.ahead
		z, brake := matchZone(&s, false)
		require.NotNil(t, z, "ahead %v", tt.ahead)
		assert.Equal(t, "braking", z.name)
		assert.Equal(t, tt.brake, brake, "ahead %v", tt.ahead)
	}
}

func TestSpeedingLadderBands(t *testing.T) {
	tests := []struct {
		ahead float64
		brake float64
	}{
		{180, 0}, {150, 0}, {130, 0}, {101, 0}, {100, 0.4},
		{81, 0.4}, {80, 0.7}, {61, 0.7}, {60, 0.75}, {0, 0.75},
	}
	for _, tt := range tests {
		s := CarState{SpeedX: 91, TrackPos: -0.1}
		s.Track[trackRight] = 7.5
		s.Track[trackLeft] = 7.5
		s.Track[trackAhead] = tt.ahead
		z, brake := matchZone(&s, false)
		require.NotNil(t, z, "ahead %v", tt.ahead)
		assert.Equal(t, "speeding", z.name)
		assert.Equal(t, tt.brake, brake, "ahead %v", tt.ahead)
	}
}

func TestZoneGates(t *testing.T) {
	base := func() CarState {
		s := CarState{SpeedX: 95, TrackPos: 0.2}
		s.Track[trackRight] = 5
		s.Track[trackLeft] = 5
		s.Track[trackAhead] = 100
		return s
	}

	s := base()
	z, _ := matchZone(&s, false)
	require.NotNil(t, z)

	s = base()
	s.SpeedX = 80
	z, _ = matchZone(&s, false)
	assert.Nil(t, z, "speed must exceed 80")

	s = base()
	s.Angle = 0.3
	z, _ = matchZone(&s, false)
	assert.Nil(t, z, "diff must be positive")

	s = base()
	s.Track[trackAhead] = 195
	z, _ = matchZone(&s, false)
	assert.Nil(t, z, "nothing beyond 180")

	// speeding ladder needs more than 90
	s = base()
	s.Track[trackRight] = 8
	s.Track[trackLeft] = 8
	s.SpeedX = 85
	z, _ = matchZone(&s, false)
	assert.Nil(t, z)
}

func TestAccelConvergence(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	s := sensors{speed: 20, left: 10, right: 10, ahead: 200}
	for i := 1; i <= 15; i++ {
		drive(t, d, s)
		want := 0.1 * float64(i)
		if want > 1 {
			want = 1
		}
		assert.InDelta(t, want, d.Control.Accel(), 1e-9)
		assert.LessOrEqual(t, d.Control.Accel(), 1.0)
	}
}

func TestAccelBacksOffAtMaxSpeed(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	d.Control.SetAccel(0.5)
	drive(t, d, sensors{speed: 135, left: 10, right: 10, ahead: 200})
	assert.InDelta(t, 0.3, d.Control.Accel(), 1e-9)
	drive(t, d, sensors{speed: 135, left: 10, right: 10, ahead: 200})
	drive(t, d, sensors{speed: 135, left: 10, right: 10, ahead: 200})
	assert.Equal(t, 0.0, d.Control.Accel())
}

func TestOnRestartClearsMemory(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	drive(t, d, sensors{ahead: 150, right: 5, left: 20, speed: 95, trackPos: 0.2, rpm: 5000})
	require.True(t, d.Braking())
	require.True(t, d.hasPrevRPM)

	d.OnRestart()
	assert.False(t, d.Braking())
	assert.False(t, d.hasPrevRPM)
	assert.Equal(t, CarControl{}, d.Control)
	assert.Equal(t, CarState{}, d.State)
}

type predictorStub struct {
	features   Features
	prediction Prediction
	err        error
}

func (p *predictorStub) Predict(f Features) (Prediction, error) {
	p.features = f
	return p.prediction, p.err
}

func TestPredictorLogOnly(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	stub := &predictorStub{prediction: Prediction{Accel: 1, Brake: 1, Steer: 1, Gear: 5}}
	d.SetPredictor(stub, 0)

	drive(t, d, sensors{ahead: 150, right: 5, left: 20, speed: 95, trackPos: 0.2, rpm: 4000, gear: 3})
	require.NotNil(t, d.Prediction())
	assert.Equal(t, stub.prediction, *d.Prediction())
	assert.Equal(t, 0.2, d.Control.Accel(), "rule output kept")
	assert.Equal(t, 0.4, d.Control.Brake())

	assert.Equal(t, Features{
		TrackLeft: 20, TrackRight: 5, TrackAhead: 150, TrackPos: 0.2,
		PrevGear: 3, RPM: 4000, SpeedX: 95, Diff: 0.2, PrevBrake: 0, CurrBrake: 0.4,
	}, stub.features)
}

func TestPredictorBlend(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	stub := &predictorStub{prediction: Prediction{Accel: 1, Brake: 0, Steer: 0.5, Gear: 5}}
	d.SetPredictor(stub, 0.5)

	drive(t, d, sensors{speed: 50, left: 10, right: 10, ahead: 200, rpm: 3000, gear: 3})
	assert.InDelta(t, 0.55, d.Control.Accel(), 1e-9)
	assert.Equal(t, 0.0, d.Control.Brake())
	assert.InDelta(t, 0.25, d.Control.Steer(), 1e-9)
	assert.Equal(t, 4, d.Control.Gear())
}

func TestPredictorError(t *testing.T) {
	d := NewDriver(DefaultDriverConfig())
	d.SetPredictor(&predictorStub{err: errors.New("boom")}, 1)
	drive(t, d, sensors{speed: 50, left: 10, right: 10, ahead: 200, rpm: 3000, gear: 3})
	assert.Nil(t, d.Prediction())
	assert.InDelta(t, 0.1, d.Control.Accel(), 1e-9)
}
