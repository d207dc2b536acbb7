package forwarder

import (
	"github.com/jd3nn1s/scrc"
)

type Header struct {
	Type uint8
}

const (
	TypeTick = 1
)

// Telemetry is the fixed size body of a TypeTick packet, little endian.
type Telemetry struct {
	RunID   [16]byte
	Episode uint32
	Step    uint32

	Angle      float32
	TrackPos   float32
	SpeedX     float32
	SpeedY     float32
	SpeedZ     float32
	RPM        float32
	Gear       int8
	TrackLeft  float32
	TrackAhead float32
	TrackRight float32
	DistRaced  float32
	Fuel       float32
	Damage     float32
	CurLapTime float32
	RacePos    uint8

	Accel   float32
	Brake   float32
	Steer   float32
	CmdGear int8
	Braking uint8
}

func newTelemetry(t *scrc.Tick) *Telemetry {
	s := &t.State
	telem := &Telemetry{
		RunID:      t.RunID,
		Episode:    uint32(t.Episode),
		Step:       uint32(t.Step),
		Angle:      float32(s.Angle),
		TrackPos:   float32(s.TrackPos),
		SpeedX:     float32(s.SpeedX),
		SpeedY:     float32(s.SpeedY),
		SpeedZ:     float32(s.SpeedZ),
		RPM:        float32(s.RPM),
		Gear:       int8(s.Gear),
		TrackLeft:  float32(s.Track[1]),
		TrackAhead: float32(s.Track[9]),
		TrackRight: float32(s.Track[17]),
		DistRaced:  float32(s.DistRaced),
		Fuel:       float32(s.Fuel),
		Damage:     float32(s.Damage),
		CurLapTime: float32(s.CurLapTime),
		RacePos:    uint8(s.RacePos),
		Accel:      float32(t.Accel),
		Brake:      float32(t.Brake),
		Steer:      float32(t.Steer),
		CmdGear:    int8(t.Gear),
	}
	if t.Braking {
		telem.Braking = 1
	}
	return telem
}
