package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/protocol"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
)

const imageExt = ".jpg"

var ErrNoFeatures = errors.New("no features found in template image")

type store struct {
	dir     string
	ex      Extractor
	matcher analytics.FaceMatcher

	mu      sync.RWMutex
	records map[string]*Record
}

func NewStore(dir string, ex Extractor, minScore int) IService {
	return &store{
		dir:     dir,
		ex:      ex,
		matcher: analytics.FaceMatcher{MinScore: minScore},
		records: map[string]*Record{},
	}
}

// Load reads every <name>.jpg in the directory. Images without usable
// features are skipped.
func (s *store) Load() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return model.NewError(model.IOError, model.CauseOther, "load templates", s.dir, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return model.NewError(model.IOError, model.CauseOther, "load templates", s.dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		name, ok := templateName(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}
		if err := s.reload(name); err != nil {
			lgr.Logger.Warn(
				"skipping template",
				slog.String("name", name),
				slog.Any("error", err),
			)
			continue
		}
		loaded++
	}

	lgr.Logger.Info(
		"templates loaded",
		slog.String("dir", s.dir),
		slog.Int("count", loaded),
	)
	return nil
}

// Enroll computes descriptors first and only then persists and installs the
// template. A failure leaves both disk and memory untouched.
func (s *store) Enroll(name string, image []byte) error {
	if err := protocol.ValidateName(name); err != nil {
		return model.NewError(model.ProtocolError, model.CauseCorrupt, "enroll", name, err)
	}
	if len(image) == 0 {
		return model.NewError(model.ProtocolError, model.CauseCorrupt, "enroll", name, xerrors.New("empty image"))
	}

	desc, err := s.describe(image)
	if err != nil {
		return model.NewError(model.ProtocolError, model.CauseCorrupt, "enroll", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(name)
	info, err := writeAtomic(s.dir, path, image)
	if err != nil {
		desc.Close()
		return model.NewError(model.IOError, model.CauseOther, "enroll", name, err)
	}

	s.install(&Record{
		Name:        name,
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime().UnixNano(),
		Descriptors: desc,
	})

	lgr.Logger.Info(
		"template enrolled",
		slog.String("name", name),
		slog.Int("descriptors", desc.Len()),
	)
	return nil
}

// Delete removes the template file and entry. A missing name is not an error.
func (s *store) Delete(name string) error {
	if err := protocol.ValidateName(name); err != nil {
		return model.NewError(model.ProtocolError, model.CauseCorrupt, "delete", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return model.NewError(model.IOError, model.CauseOther, "delete", name, err)
	}

	if s.evict(name) {
		lgr.Logger.Info(
			"template deleted",
			slog.String("name", name),
		)
	}
	return nil
}

// Recognize scores query against every template. The read lock is held for
// the whole pass so no descriptor set is released while in use.
func (s *store) Recognize(query model.Descriptors) (string, int) {
	if query == nil || query.Len() == 0 {
		return analytics.Unknown, 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]analytics.Score, 0, len(s.records))
	for name, rec := range s.records {
		scores = append(scores, analytics.Score{
			Name:    name,
			Matches: s.ex.CountMatches(query, rec.Descriptors),
		})
	}
	return s.matcher.Label(scores)
}

func (s *store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, rec := range s.records {
		errs = append(errs, rec.Descriptors.Close())
		delete(s.records, name)
	}
	return errors.Join(errs...)
}

// reload (re)reads <name>.jpg from disk unless the installed record already
// reflects the file.
func (s *store) reload(name string) error {
	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	s.mu.RLock()
	cur, ok := s.records[name]
	fresh := ok && cur.Size == info.Size() && cur.ModTime == info.ModTime().UnixNano()
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	desc, err := s.describe(image)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(&Record{
		Name:        name,
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime().UnixNano(),
		Descriptors: desc,
	})
	return nil
}

func (s *store) describe(image []byte) (model.Descriptors, error) {
	desc, err := s.ex.DescribeBytes(image)
	if err != nil {
		return nil, err
	}
	if desc == nil || desc.Len() == 0 {
		if desc != nil {
			desc.Close()
		}
		return nil, ErrNoFeatures
	}
	return desc, nil
}

// install must be called with the write lock held.
func (s *store) install(rec *Record) {
	if old, ok := s.records[rec.Name]; ok {
		old.Descriptors.Close()
	}
	s.records[rec.Name] = rec
}

// evict must be called with the write lock held.
func (s *store) evict(name string) bool {
	old, ok := s.records[name]
	if !ok {
		return false
	}
	old.Descriptors.Close()
	delete(s.records, name)
	return true
}

func (s *store) path(name string) string {
	return filepath.Join(s.dir, name+imageExt)
}

func templateName(file string) (string, bool) {
	if strings.HasPrefix(file, ".") || filepath.Ext(file) != imageExt {
		return "", false
	}
	name := file[:len(file)-len(imageExt)]
	if protocol.ValidateName(name) != nil {
		return "", false
	}
	return name, true
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(dir, path string, data []byte) (fs.FileInfo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, ".enroll-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to install %s: %w", path, err)
	}
	return os.Stat(path)
}
