package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/jd3nn1s/scrc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"net"
	"os"
	"time"
)

var maxTelemetrySize = binary.Size(Header{}) + binary.Size(Telemetry{})

type UDPConfig struct {
	Server string
	Port   int
	// Interval limits the packet rate; ticks arriving faster are dropped.
	Interval time.Duration
}

// UDPForwarder sends a compact copy of every tick to a live telemetry
// display. It never blocks the session: when a packet is still waiting to
// go out, newer ticks are dropped.
type UDPForwarder struct {
	Config *UDPConfig

	conn    net.Conn
	fwdChan chan *Telemetry
}

func NewUDPForwarder(fileName string) (*UDPForwarder, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewUDPForwarderFromReader(file)
}

func NewUDPForwarderFromReader(configReader io.Reader) (*UDPForwarder, error) {
	config := UDPConfig{}
	if _, err := toml.NewDecoder(configReader).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "unable to load udp forwarder configuration")
	}
	return NewUDPForwarderFromConfig(config)
}

func NewUDPForwarderFromConfig(config UDPConfig) (*UDPForwarder, error) {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	udp := &UDPForwarder{
		Config:  &config,
		fwdChan: make(chan *Telemetry, 1),
	}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

func (udp *UDPForwarder) Forward(tick *scrc.Tick) error {
	select {
	// converted copy as it is written on another go-routine
	case udp.fwdChan <- newTelemetry(tick):
	default:
		// if channel is full, skip
	}
	return nil
}

func (udp *UDPForwarder) Start(ctx context.Context) error {
	limiter := time.NewTicker(udp.Config.Interval)
	defer limiter.Stop()
	for {
		select {
		case <-limiter.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case t := <-udp.fwdChan:
			if err := udp.forward(t); err != nil {
				log.Error("unable to forward telemetry to server ", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) forward(telem *Telemetry) error {
	buf := bytes.NewBuffer(make([]byte, 0, maxTelemetrySize))
	hdr := Header{
		Type: TypeTick,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "unable to write udp packet header")
	}
	if err := binary.Write(buf, binary.LittleEndian, telem); err != nil {
		return errors.Wrap(err, "unable to write telemetry udp packet")
	}
	_, err := udp.conn.Write(buf.Bytes())
	return err
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxTelemetrySize * 2

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return err
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
