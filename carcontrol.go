package scrc

import (
	"github.com/jd3nn1s/scrc/scrmsg"
)

// CarControl holds the actuator values sent back each tick. It persists
// across ticks and every setter clamps to the actuator's range.
type CarControl struct {
	accel  float64
	brake  float64
	steer  float64
	clutch float64
	gear   int
}

func (c *CarControl) Accel() float64  { return c.accel }
func (c *CarControl) Brake() float64  { return c.brake }
func (c *CarControl) Steer() float64  { return c.steer }
func (c *CarControl) Clutch() float64 { return c.clutch }
func (c *CarControl) Gear() int       { return c.gear }

func (c *CarControl) SetAccel(v float64)  { c.accel = clamp(v, 0, 1) }
func (c *CarControl) SetBrake(v float64)  { c.brake = clamp(v, 0, 1) }
func (c *CarControl) SetSteer(v float64)  { c.steer = clamp(v, -1, 1) }
func (c *CarControl) SetClutch(v float64) { c.clutch = clamp(v, 0, 1) }
func (c *CarControl) SetGear(v int)       { c.gear = v }

// ToMsg encodes the actuators in the order the server expects.
func (c *CarControl) ToMsg() string {
	return scrmsg.Stringify(
		scrmsg.Floats("accel", c.accel),
		scrmsg.Floats("brake", c.brake),
		scrmsg.Ints("gear", c.gear),
		scrmsg.Floats("steer", c.steer),
		scrmsg.Floats("clutch", c.clutch),
	)
}

// QuitMsg is sent in place of a control message to ask the server to end
// the race.
func QuitMsg() string {
	return scrmsg.Stringify(scrmsg.Ints("meta", 1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
