package scrc

import (
	"context"
	"github.com/google/uuid"
	"github.com/jd3nn1s/scrc/scrmsg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSendFailed is the cause of every error returned after a failed
	// write to the server. It ends the client.
	ErrSendFailed = errors.New("failed to send data")
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateIdentified
	StateStepping
	StateRestarting
	StateShuttingDown
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateStepping:
		return "stepping"
	case StateRestarting:
		return "restarting"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	}
	return "invalid"
}

// Tick is one completed receive/compute cycle as handed to forwarders.
type Tick struct {
	RunID   uuid.UUID
	Episode int
	Step    int
	Time    time.Time

	State      CarState
	Accel      float64
	Brake      float64
	Steer      float64
	Clutch     float64
	Gear       int
	Braking    bool
	Prediction *Prediction
}

// to allow testing
var dial = func(host string, port int) (Conn, error) {
	return net.Dial("udp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// Client drives one car on an SCR server: it performs the handshake, then
// answers every sensor message with a control message until the server
// restarts or shuts the race down.
type Client struct {
	config     Config
	driver     *Driver
	forwarders []Forwarder

	conn    Conn
	buf     []byte
	state   SessionState
	runID   uuid.UUID
	episode int
	step    int

	// stateHook observes transitions, for tests
	stateHook func(SessionState)
}

func NewClient(config Config, driver *Driver) *Client {
	return &Client{
		config: config,
		driver: driver,
		buf:    make([]byte, config.MaxDatagram),
	}
}

func (c *Client) AddForwarder(f Forwarder) {
	c.forwarders = append(c.forwarders, f)
}

func (c *Client) State() SessionState {
	return c.state
}

// Episodes returns the number of finished episodes.
func (c *Client) Episodes() int {
	return c.episode
}

// Run connects to the server and races until the episode budget is used up,
// the server shuts down on the last episode, or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	conn, err := dial(c.config.Host, c.config.Port)
	if err != nil {
		return errors.Wrapf(err, "unable to open socket to %s:%d", c.config.Host, c.config.Port)
	}
	defer conn.Close()
	c.conn = conn

	for {
		c.setState(StateConnecting)
		c.runID = uuid.New()
		c.step = 0
		if err := c.handshake(ctx); err != nil {
			return err
		}
		c.setState(StateIdentified)

		if err := c.stepLoop(ctx); err != nil {
			return err
		}

		c.episode++
		if c.config.MaxEpisodes > 0 && c.episode >= c.config.MaxEpisodes {
			c.setState(StateStopped)
			return nil
		}
	}
}

func (c *Client) setState(s SessionState) {
	if c.state != s {
		log.WithFields(log.Fields{
			"from":    c.state,
			"to":      s,
			"episode": c.episode,
		}).Info("session state")
	}
	c.state = s
	if c.stateHook != nil {
		c.stateHook(s)
	}
}

func (c *Client) handshake(ctx context.Context) error {
	initMsg := c.config.ID + c.driver.Init()
	return retry(ctx, "handshake", func() error {
		log.WithField("init", initMsg).Info("sending init string to server")
		if err := c.send(initMsg); err != nil {
			return permanent(err)
		}
		raw, err := c.recv()
		if err != nil {
			return err
		}
		log.WithField("data", raw).Info("received data from server")
		if !strings.Contains(raw, scrmsg.Identified) {
			return errors.New("not identified")
		}
		return nil
	})
}

// stepLoop returns once the server has sent a restart or shutdown.
func (c *Client) stepLoop(ctx context.Context) error {
	for {
		var raw string
		err := retry(ctx, "step", func() error {
			var err error
			raw, err = c.recv()
			return err
		})
		if err != nil {
			return err
		}
		log.WithField("data", raw).Debug("received")

		switch {
		case strings.Contains(raw, scrmsg.Shutdown):
			c.driver.OnShutdown()
			log.Info("client shutdown")
			c.setState(StateShuttingDown)
			return nil
		case strings.Contains(raw, scrmsg.Restart):
			c.driver.OnRestart()
			log.Info("client restart")
			c.setState(StateRestarting)
			return nil
		}

		out, err := c.tick(raw)
		if err != nil {
			log.WithField("data", raw).Warn("ignoring unrecognised payload")
			continue
		}
		log.WithField("data", out).Debug("sending")
		if err := c.send(out); err != nil {
			return err
		}
	}
}

var errUnrecognised = errors.New("unrecognised payload")

// tick computes the reply to one sensor message. Once the step budget is
// reached the reply for that step is the quit request.
func (c *Client) tick(raw string) (string, error) {
	if c.config.MaxSteps > 0 && c.step+1 == c.config.MaxSteps {
		c.step++
		log.WithField("step", c.step).Info("step budget reached, requesting quit")
		return QuitMsg(), nil
	}
	out, ok := c.driver.Drive(raw)
	if !ok {
		return "", errUnrecognised
	}
	c.step++
	if c.state != StateStepping {
		c.setState(StateStepping)
	}
	c.forward()
	return out, nil
}

func (c *Client) forward() {
	if len(c.forwarders) == 0 {
		return
	}
	d := c.driver
	t := &Tick{
		RunID:      c.runID,
		Episode:    c.episode,
		Step:       c.step,
		Time:       time.Now(),
		State:      d.State,
		Accel:      d.Control.Accel(),
		Brake:      d.Control.Brake(),
		Steer:      d.Control.Steer(),
		Clutch:     d.Control.Clutch(),
		Gear:       d.Control.Gear(),
		Braking:    d.Braking(),
		Prediction: d.Prediction(),
	}
	for _, f := range c.forwarders {
		if err := f.Forward(t); err != nil {
			log.WithField("err", err).Warn("unable to forward tick")
		}
	}
}

func (c *Client) send(msg string) error {
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return errors.Wrapf(ErrSendFailed, "%v", err)
	}
	return nil
}

func (c *Client) recv() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.RecvTimeout)); err != nil {
		return "", permanent(errors.Wrap(err, "unable to set read deadline"))
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return "", permanent(err)
		}
		return "", err
	}
	return strings.TrimRight(string(c.buf[:n]), "\x00"), nil
}
