package tablefile

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"abilower/internal/layout"
)

// Status is the progress of one file in LoadAll.
type Status uint8

const (
	StatusQueued Status = iota
	StatusDecoding
	StatusBuilding
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusDecoding:
		return "decoding"
	case StatusBuilding:
		return "building"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Event reports a status change for File.
type Event struct {
	File   string
	Status Status
}

// Sink receives progress events. It may be called from several goroutines.
type Sink interface {
	OnEvent(Event)
}

// ChannelSink forwards events to a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch != nil {
		s.Ch <- ev
	}
}

// Result is the outcome of loading one file.
type Result struct {
	Path        string
	Description *Description
	Table       *layout.Table
	Err         error
}

// LoadAll loads every path concurrently with at most jobs workers (0 means
// GOMAXPROCS). Results keep the order of paths. A failing file does not stop
// the others; its error is recorded in its Result. The returned error is only
// set when ctx is canceled.
func LoadAll(ctx context.Context, paths []string, jobs int, sink Sink) ([]Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	emit := func(path string, st Status) {
		if sink != nil {
			sink.OnEvent(Event{File: path, Status: st})
		}
	}
	for _, p := range paths {
		emit(p, StatusQueued)
	}

	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := Result{Path: path}
			emit(path, StatusDecoding)
			res.Description, res.Err = LoadFile(path)
			if res.Err == nil {
				emit(path, StatusBuilding)
				res.Table, res.Err = res.Description.Build()
			}
			if res.Err != nil {
				emit(path, StatusError)
			} else {
				emit(path, StatusDone)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
