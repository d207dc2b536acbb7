// Package recorder keeps every tick of a run in a SQLite database so
// sessions can be replayed or used as training data.
package recorder

import (
	"database/sql"
	_ "embed"
	"github.com/google/uuid"
	"github.com/jd3nn1s/scrc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

type Recorder struct {
	*sql.DB

	runID uuid.UUID
}

// Open creates the database at path if needed.
func Open(path string) (*Recorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("recorder path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open recorder database %s", path)
	}
	// a single connection keeps episode and tick inserts ordered
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to create recorder schema")
	}
	return &Recorder{DB: db}, nil
}

func (r *Recorder) Forward(t *scrc.Tick) error {
	if t.RunID != r.runID {
		if err := r.startEpisode(t); err != nil {
			return err
		}
		r.runID = t.RunID
	}
	braking := 0
	if t.Braking {
		braking = 1
	}
	s := &t.State
	_, err := r.Exec(`INSERT INTO ticks (
		run_id, step, recorded_at,
		angle, track_pos, speed_x, rpm, gear,
		track_left, track_ahead, track_right,
		dist_raced, damage,
		accel, brake, steer, cmd_gear, braking
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID.String(), t.Step, t.Time.UnixMilli(),
		s.Angle, s.TrackPos, s.SpeedX, s.RPM, s.Gear,
		s.Track[1], s.Track[9], s.Track[17],
		s.DistRaced, s.Damage,
		t.Accel, t.Brake, t.Steer, t.Gear, braking)
	if err != nil {
		return errors.Wrapf(err, "unable to record step %d", t.Step)
	}
	return nil
}

func (r *Recorder) startEpisode(t *scrc.Tick) error {
	_, err := r.Exec(`INSERT OR IGNORE INTO episodes (run_id, episode, started_at) VALUES (?, ?, ?)`,
		t.RunID.String(), t.Episode, t.Time.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "unable to record episode %d", t.Episode)
	}
	log.WithField("run", t.RunID).WithField("episode", t.Episode).Debug("recording episode")
	return nil
}

// Episode is one recorded run.
type Episode struct {
	RunID   uuid.UUID
	Episode int
	Ticks   int
}

func (r *Recorder) Episodes() ([]Episode, error) {
	rows, err := r.Query(`SELECT e.run_id, e.episode, COUNT(t.step)
		FROM episodes e LEFT JOIN ticks t ON t.run_id = e.run_id
		GROUP BY e.run_id, e.episode
		ORDER BY e.episode`)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query episodes")
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			e     Episode
			runID string
		)
		if err := rows.Scan(&runID, &e.Episode, &e.Ticks); err != nil {
			return nil, errors.Wrap(err, "unable to scan episode")
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, errors.Wrapf(err, "bad run id %q", runID)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
