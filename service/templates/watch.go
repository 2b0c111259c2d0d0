package templates

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

const watchDebounce = 250 * time.Millisecond

// Watch keeps the store in sync with images copied into or removed from the
// templates directory by hand. It returns when ctx is done.
func (s *store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return model.NewError(model.ResourceError, model.CauseOther, "watch templates", s.dir, err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return model.NewError(model.ResourceError, model.CauseOther, "watch templates", s.dir, err)
	}

	lgr.Logger.Info(
		"watching templates",
		slog.String("dir", s.dir),
	)

	var mu sync.Mutex
	pending := map[string]*time.Timer{}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range pending {
			t.Stop()
		}
	}()

	schedule := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[name]; ok {
			t.Reset(watchDebounce)
			return
		}
		pending[name] = time.AfterFunc(watchDebounce, func() {
			mu.Lock()
			delete(pending, name)
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			s.sync(name)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, ok := templateName(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				schedule(name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lgr.Logger.Warn(
				"template watcher error",
				slog.Any("error", err),
			)
		}
	}
}

// sync reloads name if its file exists and evicts it otherwise.
func (s *store) sync(name string) {
	err := s.reload(name)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		s.mu.Lock()
		evicted := s.evict(name)
		s.mu.Unlock()
		if evicted {
			lgr.Logger.Info(
				"template removed from disk",
				slog.String("name", name),
			)
		}
	default:
		lgr.Logger.Warn(
			"template reload failed",
			slog.String("name", name),
			slog.Any("error", err),
		)
	}
}
