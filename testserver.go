package scrc

import (
	"context"
	"github.com/jd3nn1s/scrc/scrmsg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"math"
	"net"
	"strings"
	"sync"
	"time"
)

// TestServer imitates an SCR race server on a UDP socket, feeding a
// synthetic car whose track clearance ramps between straights and corners.
// It backs the client's test mode and the session tests.
type TestServer struct {
	// RestartAfter answers with a restart once that many control messages
	// arrived in an episode; 0 never restarts.
	RestartAfter int

	conn net.PacketConn
	car  testCar

	mu       sync.Mutex
	controls []string
	inits    int
	quits    int
}

func NewTestServer(addr string) (*TestServer, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to listen on %s", addr)
	}
	return &TestServer{conn: conn}, nil
}

func (s *TestServer) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *TestServer) Close() error {
	return s.conn.Close()
}

// Controls returns every control message received so far.
func (s *TestServer) Controls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.controls...)
}

// Inits returns the number of handshakes answered.
func (s *TestServer) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Quits returns the number of quit requests answered.
func (s *TestServer) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

func (s *TestServer) Run(ctx context.Context) error {
	buf := make([]byte, 1700)
	received := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return errors.Wrap(err, "unable to set read deadline")
		}
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "test server read")
		}
		payload := string(buf[:n])

		var replies []string
		switch {
		case strings.Contains(payload, "(init"):
			s.mu.Lock()
			s.inits++
			s.mu.Unlock()
			received = 0
			s.car = newTestCar()
			replies = []string{scrmsg.Identified, s.car.sensors()}
		case payload == QuitMsg():
			s.mu.Lock()
			s.quits++
			s.mu.Unlock()
			replies = []string{scrmsg.Shutdown}
		default:
			msg := scrmsg.Parse(payload)
			if !msg.Has("accel") {
				log.WithField("data", payload).Debug("test server: ignoring payload")
				continue
			}
			s.mu.Lock()
			s.controls = append(s.controls, payload)
			s.mu.Unlock()
			received++
			if s.RestartAfter > 0 && received >= s.RestartAfter {
				received = 0
				replies = []string{scrmsg.Restart}
				break
			}
			s.car.step(msg)
			replies = []string{s.car.sensors()}
		}

		for _, r := range replies {
			if _, err := s.conn.WriteTo([]byte(r), addr); err != nil {
				log.WithField("err", err).Warn("test server: unable to reply")
			}
		}
	}
}

const testTickSeconds = 0.02

type testCar struct {
	speed    float64
	rpm      float64
	gear     int
	distance float64
	lapTime  float64
}

func newTestCar() testCar {
	return testCar{rpm: 900}
}

func (c *testCar) step(msg scrmsg.Message) {
	accel, _ := msg.Float("accel")
	brake, _ := msg.Float("brake")
	gear, _ := msg.Float("gear")
	c.gear = int(gear)

	c.speed += accel*3 - brake*6 - 0.2
	if c.speed < 0 {
		c.speed = 0
	}
	if c.gear > 0 {
		c.rpm = 900 + c.speed*6000/(float64(c.gear)*40)
	} else {
		c.rpm += accel * 1000
	}
	c.rpm = math.Min(c.rpm, 7500)
	c.distance += c.speed / 3.6 * testTickSeconds
	c.lapTime += testTickSeconds
}

// sensors renders the car as a server message. Every 400m of track is a
// straight that narrows into a corner.
func (c *testCar) sensors() string {
	phase := math.Mod(c.distance, 400) / 400
	ahead := 200 - phase*180
	side := 10 - phase*6
	trackPos := 0.1 * math.Sin(c.distance/50)

	track := make([]float64, TrackSensors)
	for i := range track {
		track[i] = side
	}
	track[trackAhead] = ahead

	return scrmsg.Stringify(
		scrmsg.Floats("angle", 0),
		scrmsg.Floats("curLapTime", c.lapTime),
		scrmsg.Floats("distFromStart", c.distance),
		scrmsg.Floats("distRaced", c.distance),
		scrmsg.Floats("fuel", 94),
		scrmsg.Ints("gear", c.gear),
		scrmsg.Ints("racePos", 1),
		scrmsg.Floats("rpm", c.rpm),
		scrmsg.Floats("speedX", c.speed),
		scrmsg.Floats("speedY", 0),
		scrmsg.Floats("speedZ", 0),
		scrmsg.Floats("track", track...),
		scrmsg.Floats("trackPos", trackPos),
		scrmsg.Floats("wheelSpinVel", c.speed, c.speed, c.speed, c.speed),
	)
}
