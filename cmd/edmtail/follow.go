package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"example.com/edmgate/internal/common"
	"example.com/edmgate/internal/config"
	"example.com/edmgate/internal/export"
	"example.com/edmgate/internal/jpi"
)

// follower feeds a growing capture file into one decode session and writes
// every flight out as soon as the session has finished with it.
type follower struct {
	path    string
	outDir  string
	format  export.Format
	idle    time.Duration
	session *jpi.Session
	log     *common.FlightLog
	now     func() time.Time

	offset   int64
	emitted  int
	lastData time.Time
}

func newFollower(cfg *config.Config, path string, metrics *common.Metrics) *follower {
	opts := cfg.DecodeOptions()
	opts.Metrics = metrics
	return &follower{
		path:     path,
		outDir:   cfg.Output.Dir,
		format:   cfg.ExportFormat(),
		idle:     cfg.Tail.IdleTimeout,
		session:  jpi.NewSession(opts),
		log:      common.NewFlightLog(cfg.Tail.FlightLog),
		now:      time.Now,
		lastData: time.Now(),
	}
}

// read copies whatever the file gained since the last call into the
// session. A missing file counts as no growth.
func (f *follower) read() (int64, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < f.offset {
		return 0, fmt.Errorf("%s shrank from %d to %d bytes", f.path, f.offset, info.Size())
	}
	if _, err := fh.Seek(f.offset, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.Copy(f.session, fh)
	f.offset += n
	return n, err
}

// step polls the file once and decodes what arrived. done is set once the
// session is complete or invalid.
func (f *follower) step() (done bool, err error) {
	n, err := f.read()
	if err != nil {
		return false, err
	}
	now := f.now()
	switch {
	case n > 0:
		f.lastData = now
	case f.idle > 0 && now.Sub(f.lastData) >= f.idle:
		common.Logf("edmtail: no data from %s for %s, closing input", f.path, f.idle)
		f.session.CloseInput()
	}
	p, advErr := f.session.Advance()
	if p.Records > 0 || p.Flights > 0 {
		common.Debugf("edmtail: session %s %s, +%d bytes, %d records, %d flights", f.session.ID(), p.State, p.Consumed, p.Records, p.Flights)
	}
	if err := f.emit(); err != nil {
		return false, err
	}
	switch p.State {
	case jpi.StateComplete:
		return true, nil
	case jpi.StateInvalid:
		return true, advErr
	}
	return false, nil
}

// finish closes the input and emits whatever the last bytes completed.
func (f *follower) finish() error {
	if _, err := f.read(); err != nil {
		common.Logf("edmtail: final read: %v", err)
	}
	f.session.CloseInput()
	_, advErr := f.session.Advance()
	if err := f.emit(); err != nil {
		return err
	}
	return advErr
}

// emit writes out flights the session no longer works on, in file order.
func (f *follower) emit() error {
	hdr, _ := f.session.Header()
	flights := f.session.Flights()
	for ; f.emitted < len(flights); f.emitted++ {
		fl := flights[f.emitted]
		if fl.Status == jpi.StatusParsing {
			break
		}
		entry := common.FlightLogEntry{
			Session:  f.session.ID(),
			Source:   f.path,
			FlightID: int(fl.Header.ID),
			Status:   fl.Status.String(),
			Offset:   fl.Header.Offset,
			Samples:  len(fl.Samples),
		}
		if hdr != nil && f.emitted < len(hdr.Flights) {
			entry.Size = hdr.Flights[f.emitted].SizeBytes()
		}
		if fl.Header.HasDate {
			entry.Start = fl.Header.Start
		}
		switch {
		case fl.Status == jpi.StatusComplete:
			out, err := export.WriteFile(f.outDir, f.format, export.NewDocument(hdr, fl))
			if err != nil {
				entry.Error = err.Error()
				common.Logf("edmtail: export flight %d: %v", fl.Header.ID, err)
			} else {
				entry.Output = out
			}
		case fl.Err != nil:
			entry.Error = fl.Err.Error()
		}
		if err := f.log.Append(entry); err != nil {
			return fmt.Errorf("flight log: %w", err)
		}
		common.Logf("edmtail: flight %d %s, %d samples", fl.Header.ID, fl.Status, len(fl.Samples))
	}
	return nil
}

// run polls until the session finishes or ctx is cancelled. Cancelling
// closes the input, so a flight still being written ends truncated.
func (f *follower) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := f.step()
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			common.Logf("edmtail: stopping: %v", ctx.Err())
			return f.finish()
		case <-ticker.C:
		}
	}
}
