package scrc

import (
	"time"
)

// Conn is the datagram socket to the race server. *net.UDPConn satisfies it.
type Conn interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	SetReadDeadline(time.Time) error
	Close() error
}

// Forwarder receives every computed tick. Errors are logged and never stop
// the session.
type Forwarder interface {
	Forward(*Tick) error
}

type Predictor interface {
	Predict(Features) (Prediction, error)
}
