package session

import (
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

type resource struct {
	name   string
	closer io.Closer
}

// Resources releases session-owned handles in the order they were added.
type Resources struct {
	mu    sync.Mutex
	items []resource
}

func (r *Resources) Add(name string, c io.Closer) {
	if isNil(c) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, resource{name: name, closer: c})
}

// Release closes every resource once. Failures are logged and returned but
// never stop the remaining releases.
func (r *Resources) Release() []error {
	r.mu.Lock()
	items := r.items
	r.items = nil
	r.mu.Unlock()

	var errs []error
	for _, item := range items {
		if err := item.closer.Close(); err != nil {
			lgr.Logger.Warn(
				"failed to release resource",
				slog.String("resource", item.name),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			continue
		}
		lgr.Logger.Debug(
			"resource released",
			slog.String("resource", item.name),
		)
	}
	return errs
}

func (r *Resources) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.items))
	for i, item := range r.items {
		names[i] = item.name
	}
	return names
}

func isNil(c io.Closer) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
