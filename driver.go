package scrc

import (
	"github.com/jd3nn1s/scrc/scrmsg"
	log "github.com/sirupsen/logrus"
	"math"
)

const (
	// sensor indices
	trackLeft  = 1
	trackAhead = 9
	trackRight = 17
)

// zoneBand matches when the straight-ahead clearance lies in (lower, upper].
type zoneBand struct {
	lower, upper float64
	// ignoresLatch lets the band fire while braking is already latched
	ignoresLatch bool
	brake        float64
}

// zoneLadder is an ordered first-match table of clearance bands sharing a
// side clearance gate and a minimum speed.
type zoneLadder struct {
	name      string
	minSpeed  float64
	sideClear func(left, right float64) bool
	bands     []zoneBand
}

var brakingLadder = zoneLadder{
	name:     "braking",
	minSpeed: 80,
	sideClear: func(left, right float64) bool {
		return right < 7.5 || left < 7.5
	},
	bands: []zoneBand{
		{lower: 160, upper: 180, ignoresLatch: true, brake: 0},
		{lower: 140, upper: 160, brake: 0.4},
		{lower: 120, upper: 140, brake: 0.75},
		{lower: 100, upper: 120, brake: 0.75},
		{lower: 80, upper: 100, brake: 0.75},
		{lower: 60, upper: 80, brake: 0.75},
		{lower: math.Inf(-1), upper: 60, brake: 0.8},
	},
}

var speedingLadder = zoneLadder{
	name:     "speeding",
	minSpeed: 90,
	sideClear: func(left, right float64) bool {
		return right >= 7.2 || left >= 7.2
	},
	bands: []zoneBand{
		{lower: 160, upper: 180, ignoresLatch: true, brake: 0},
		{lower: 140, upper: 160, brake: 0},
		{lower: 120, upper: 140, brake: 0},
		{lower: 100, upper: 120, brake: 0},
		{lower: 80, upper: 100, brake: 0.4},
		{lower: 60, upper: 80, brake: 0.7},
		{lower: math.Inf(-1), upper: 60, brake: 0.75},
	},
}

var zoneLadders = []*zoneLadder{&brakingLadder, &speedingLadder}

// matchZone evaluates the ladders in order and returns the first match, or
// a nil ladder when none applies.
func matchZone(s *CarState, latched bool) (*zoneLadder, float64) {
	for _, z := range zoneLadders {
		if brake, ok := z.match(s, latched); ok {
			return z, brake
		}
	}
	return nil, 0
}

// match returns the brake value of the first band that applies.
func (z *zoneLadder) match(s *CarState, latched bool) (float64, bool) {
	if !z.sideClear(s.Track[trackLeft], s.Track[trackRight]) ||
		s.SpeedX <= z.minSpeed || s.Diff() <= 0 {
		return 0, false
	}
	ahead := s.Track[trackAhead]
	for _, b := range z.bands {
		if ahead <= b.lower || ahead > b.upper {
			continue
		}
		if latched && !b.ignoresLatch {
			continue
		}
		return b.brake, true
	}
	return 0, false
}

// Driver turns sensor messages into actuator messages. Besides the actuator
// state it keeps the braking latch and the previous tick's rpm; both are
// cleared on restart.
type Driver struct {
	State   CarState
	Control CarControl

	cfg    DriverConfig
	angles [TrackSensors]float64

	braking    bool
	prevRPM    float64
	hasPrevRPM bool

	predictor  Predictor
	blend      float64
	prediction *Prediction
}

func NewDriver(cfg DriverConfig) *Driver {
	return &Driver{
		cfg:    cfg,
		angles: RangefinderAngles(),
	}
}

// RangefinderAngles returns the track sensor angles in degrees, symmetric
// about the straight-ahead sensor at index 9.
func RangefinderAngles() [TrackSensors]float64 {
	var a [TrackSensors]float64
	for i := 0; i < 5; i++ {
		a[i] = float64(-90 + i*15)
		a[TrackSensors-1-i] = float64(90 - i*15)
	}
	for i := 5; i < 9; i++ {
		a[i] = float64(-20 + (i-5)*5)
		a[TrackSensors-1-i] = float64(20 - (i-5)*5)
	}
	return a
}

// SetPredictor consults p every tick. A blend of 0 only records the
// prediction; 1 replaces the rule output entirely.
func (d *Driver) SetPredictor(p Predictor, blend float64) {
	d.predictor = p
	d.blend = blend
}

// Init returns the init group sent after the bot id during the handshake.
func (d *Driver) Init() string {
	return scrmsg.Stringify(scrmsg.Floats("init", d.angles[:]...))
}

// Drive applies a sensor message and returns the control message to send.
// The second result is false when raw carried no known sensors, in which
// case nothing is computed.
func (d *Driver) Drive(raw string) (string, bool) {
	if !d.State.SetFromMsg(raw) {
		return "", false
	}
	prevBrake := d.Control.Brake()
	d.speed()
	d.steer()
	d.gear()
	d.predict(prevBrake)
	return d.Control.ToMsg(), true
}

func (d *Driver) steer() {
	s := &d.State
	angle := s.Angle
	if s.Track[trackRight] < 7.5 || s.Track[trackLeft] < 7.5 {
		angle *= 1.5
	}
	d.Control.SetSteer((angle - s.TrackPos) / d.cfg.SteerLock)
}

func (d *Driver) gear() {
	rpm := d.State.RPM
	gear := d.State.Gear

	up := true
	if d.hasPrevRPM {
		up = d.prevRPM-rpm < 0
	}
	if up && rpm > d.cfg.UpshiftRPM {
		gear++
	}
	if !up && rpm < d.cfg.DownshiftRPM {
		gear--
	}
	d.Control.SetGear(d.clampGear(gear))

	d.prevRPM = rpm
	d.hasPrevRPM = true
}

func (d *Driver) clampGear(gear int) int {
	if gear < d.cfg.MinGear {
		return d.cfg.MinGear
	}
	if gear > d.cfg.MaxGear {
		return d.cfg.MaxGear
	}
	return gear
}

func (d *Driver) speed() {
	speed := d.State.SpeedX
	accel := d.Control.Accel()

	if z, brake := matchZone(&d.State, d.braking); z != nil {
		log.WithFields(log.Fields{
			"ladder": z.name,
			"ahead":  d.State.Track[trackAhead],
			"brake":  brake,
		}).Debug("zone matched")
		d.braking = true
		speed = d.cfg.MaxSpeed
		d.Control.SetBrake(brake)
	} else {
		d.braking = false
		d.Control.SetBrake(0)
	}

	if speed < d.cfg.MaxSpeed && !d.braking {
		d.Control.SetBrake(0)
		accel += 0.1
		if accel > 1 {
			accel = 1
		}
	} else {
		accel -= 0.2
		if d.braking {
			accel = 0.2
		}
		if accel < 0 {
			accel = 0
		}
	}
	d.Control.SetAccel(accel)
}

func (d *Driver) predict(prevBrake float64) {
	d.prediction = nil
	if d.predictor == nil {
		return
	}
	p, err := d.predictor.Predict(FeaturesOf(&d.State, prevBrake, d.Control.Brake()))
	if err != nil {
		log.WithField("err", err).Warn("predictor failed")
		return
	}
	d.prediction = &p
	log.WithFields(log.Fields{
		"accel": p.Accel,
		"brake": p.Brake,
		"steer": p.Steer,
		"gear":  p.Gear,
	}).Debug("prediction")

	if d.blend <= 0 {
		return
	}
	w := d.blend
	mix := func(rule, predicted float64) float64 {
		return (1-w)*rule + w*predicted
	}
	d.Control.SetAccel(mix(d.Control.Accel(), p.Accel))
	d.Control.SetBrake(mix(d.Control.Brake(), p.Brake))
	d.Control.SetSteer(mix(d.Control.Steer(), p.Steer))
	gear := int(math.Round(mix(float64(d.Control.Gear()), p.Gear)))
	d.Control.SetGear(d.clampGear(gear))
}

// Braking reports whether the braking latch is set.
func (d *Driver) Braking() bool {
	return d.braking
}

// Prediction is the predictor output of the last tick, nil if none.
func (d *Driver) Prediction() *Prediction {
	return d.prediction
}

// OnRestart clears all per-race memory.
func (d *Driver) OnRestart() {
	d.reset()
}

// OnShutdown clears all per-race memory so the driver can be reused.
func (d *Driver) OnShutdown() {
	d.reset()
}

func (d *Driver) reset() {
	d.State = CarState{}
	d.Control = CarControl{}
	d.braking = false
	d.prevRPM = 0
	d.hasPrevRPM = false
	d.prediction = nil
}
