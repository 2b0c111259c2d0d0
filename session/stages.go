package session

import (
	"log/slog"
	"sync"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

// Stages runs the goroutines of one session. A stage returning an error
// fails the session unless it was started as optional.
type Stages struct {
	sess *Session
	wg   sync.WaitGroup
}

func NewStages(sess *Session) *Stages {
	return &Stages{sess: sess}
}

func (s *Stages) Run(name string, fn func() error) {
	s.start(name, true, fn)
}

func (s *Stages) Optional(name string, fn func() error) {
	s.start(name, false, fn)
}

func (s *Stages) start(name string, fatal bool, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn()
		if err == nil {
			return
		}
		if !fatal {
			lgr.Logger.Warn(
				"session stage stopped",
				slog.String("stage", name),
				slog.Any("error", err),
			)
			return
		}
		lgr.Logger.Error(
			"session stage failed",
			slog.String("stage", name),
			slog.Any("error", err),
		)
		s.sess.Fail(err)
	}()
}

// Done is closed once every stage has returned.
func (s *Stages) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	return ch
}
