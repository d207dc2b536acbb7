package scrc

import (
	"context"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"time"
)

// retrySleep is the pause after a failure that is not a timeout. Timeouts
// already waited for the read deadline and are retried immediately.
var retrySleep = time.Second

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

// permanent marks err as one retry must not swallow.
func permanent(err error) error {
	return &permanentError{err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retry calls op until it succeeds, ctx is done or op returns a permanent
// error.
func retry(ctx context.Context, name string, op func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err := op()
		if err == nil {
			return nil
		}
		if p, ok := err.(*permanentError); ok {
			return p.err
		}
		if isTimeout(err) {
			log.Warnf("%s: didn't get response from server", name)
			continue
		}
		log.WithField("err", err).Errorf("%s: retrying due to error", name)
		time.Sleep(retrySleep)
	}
}
