package session

import (
	"log/slog"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Streams carries the error and stats reports of a session's stages. Both
// channels are unbuffered and never closed, so every send needs a reader:
// Pump while the session runs and Drain during teardown.
type Streams struct {
	Errors chan interface{}
	Stats  chan interface{}

	onError func(interface{})
	onStats func(interface{})
}

func NewStreams(onError, onStats func(interface{})) *Streams {
	return &Streams{
		Errors:  make(chan interface{}),
		Stats:   make(chan interface{}),
		onError: onError,
		onStats: onStats,
	}
}

// Pump handles reports until stop is closed.
func (s *Streams) Pump(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case st := <-s.Stats:
			s.onStats(st)
		case e := <-s.Errors:
			s.onError(e)
		}
	}
}

// Foreground runs fn on the calling goroutine while reports are pumped on
// another one. The pump outlives fn, so reports fn sends on its way out are
// still handled.
func (s *Streams) Foreground(fn func() error) error {
	stop := make(chan struct{})
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		s.Pump(stop)
	}()

	err := fn()
	close(stop)
	<-pumped
	return err
}

// Drain keeps handling reports until done is closed or period expires. Once
// done is closed the streams are emptied of the last reports.
func (s *Streams) Drain(name string, period time.Duration, done <-chan struct{}) {
	lgr.Logger.Info(
		name + " is waiting for all go routines to exit",
	)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				name+" shutdown waiting period expired. Exiting now",
				slog.Duration("period", period),
			)
			return

		case <-done:
			for {
				select {
				case st := <-s.Stats:
					s.onStats(st)
				case e := <-s.Errors:
					s.onError(e)
				default:
					return
				}
			}

		case st := <-s.Stats:
			s.onStats(st)

		case e := <-s.Errors:
			s.onError(e)
		}
	}
}
