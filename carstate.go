package scrc

import (
	"github.com/jd3nn1s/scrc/scrmsg"
)

const (
	TrackSensors    = 19
	WheelSensors    = 4
	OpponentSensors = 36
	FocusSensors    = 5
)

// CarState is the sensor snapshot decoded from one server message. Keys
// missing from a message leave the previous value untouched.
type CarState struct {
	Angle    float64
	TrackPos float64
	SpeedX   float64
	SpeedY   float64
	SpeedZ   float64
	RPM      float64
	Gear     int
	Z        float64

	Track        [TrackSensors]float64
	WheelSpinVel [WheelSensors]float64
	Opponents    [OpponentSensors]float64
	Focus        [FocusSensors]float64

	CurLapTime    float64
	LastLapTime   float64
	DistFromStart float64
	DistRaced     float64
	Fuel          float64
	Damage        float64
	RacePos       int
}

// SetFromMsg decodes raw and applies it. It reports whether any known
// sensor was present.
func (s *CarState) SetFromMsg(raw string) bool {
	return s.Update(scrmsg.Parse(raw))
}

// Update applies a parsed message and reports whether any known sensor was
// present.
func (s *CarState) Update(msg scrmsg.Message) bool {
	found := false
	float := func(key string, dst *float64) {
		if v, ok := msg.Float(key); ok {
			*dst = v
			found = true
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := msg.Float(key); ok {
			*dst = int(v)
			found = true
		}
	}
	floats := func(key string, dst []float64) {
		if vs, ok := msg.Floats(key, len(dst)); ok {
			copy(dst, vs)
			found = true
		}
	}

	float("angle", &s.Angle)
	float("trackPos", &s.TrackPos)
	float("speedX", &s.SpeedX)
	float("speedY", &s.SpeedY)
	float("speedZ", &s.SpeedZ)
	float("rpm", &s.RPM)
	integer("gear", &s.Gear)
	float("z", &s.Z)
	floats("track", s.Track[:])
	floats("wheelSpinVel", s.WheelSpinVel[:])
	floats("opponents", s.Opponents[:])
	floats("focus", s.Focus[:])
	float("curLapTime", &s.CurLapTime)
	float("lastLapTime", &s.LastLapTime)
	float("distFromStart", &s.DistFromStart)
	float("distRaced", &s.DistRaced)
	float("fuel", &s.Fuel)
	float("damage", &s.Damage)
	integer("racePos", &s.RacePos)
	return found
}

// Diff is |trackPos| - |angle|. Positive values mean the car has drifted
// further off line than its heading corrects for.
func (s *CarState) Diff() float64 {
	return abs(s.TrackPos) - abs(s.Angle)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
