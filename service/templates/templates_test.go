package templates

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/analytics"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

// fakeDescriptors treat an image as a comma separated feature list.
type fakeDescriptors struct {
	features map[string]bool
	closed   atomic.Bool
}

func (d *fakeDescriptors) Len() int { return len(d.features) }

func (d *fakeDescriptors) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeExtractor struct {
	useAfterClose atomic.Int64
}

func (*fakeExtractor) DescribeBytes(image []byte) (model.Descriptors, error) {
	s := string(image)
	if s == "corrupt" {
		return nil, errors.New("cannot decode image")
	}
	d := &fakeDescriptors{features: map[string]bool{}}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			d.features[f] = true
		}
	}
	return d, nil
}

func (x *fakeExtractor) CountMatches(query, train model.Descriptors) int {
	q, t := query.(*fakeDescriptors), train.(*fakeDescriptors)
	if t.closed.Load() {
		x.useAfterClose.Add(1)
	}
	n := 0
	for f := range q.features {
		if t.features[f] {
			n++
		}
	}
	return n
}

func features(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix + string(rune('a'+i%26)) + strings.Repeat("x", i/26)
	}
	return strings.Join(parts, ",")
}

func query(t *testing.T, ex Extractor, image string) model.Descriptors {
	t.Helper()
	d, err := ex.DescribeBytes([]byte(image))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newTestStore(t *testing.T) (*store, *fakeExtractor, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "templates")
	ex := &fakeExtractor{}
	s := NewStore(dir, ex, analytics.DefaultMinScore).(*store)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, ex, dir
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnrollPersistsAndRecognizes(t *testing.T) {
	s, ex, dir := newTestStore(t)

	if err := s.Enroll("alice", []byte(features("f", 20))); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "alice.jpg"))
	if err != nil || string(data) != features("f", 20) {
		t.Fatalf("persisted %q, %v", data, err)
	}

	label, score := s.Recognize(query(t, ex, features("f", 12)))
	if label != "alice" || score != 12 {
		t.Fatalf("got %s/%d", label, score)
	}
	label, _ = s.Recognize(query(t, ex, features("f", 9)))
	if label != analytics.Unknown {
		t.Fatalf("weak match labelled %s", label)
	}
}

func TestReEnrollReplacesAndReleases(t *testing.T) {
	s, ex, dir := newTestStore(t)

	if err := s.Enroll("bob", []byte(features("old", 15))); err != nil {
		t.Fatal(err)
	}
	old := s.records["bob"].Descriptors.(*fakeDescriptors)

	if err := s.Enroll("bob", []byte(features("new", 15))); err != nil {
		t.Fatal(err)
	}
	if !old.closed.Load() {
		t.Fatal("old descriptors not released")
	}
	if s.Len() != 1 {
		t.Fatalf("len %d", s.Len())
	}
	if label, _ := s.Recognize(query(t, ex, features("new", 15))); label != "bob" {
		t.Fatalf("label %s", label)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "bob.jpg"))
	if string(data) != features("new", 15) {
		t.Fatal("file not overwritten")
	}
}

func TestFailedEnrollLeavesNothing(t *testing.T) {
	s, _, dir := newTestStore(t)

	for _, image := range []string{"corrupt", " , ", ""} {
		err := s.Enroll("carol", []byte(image))
		if !model.IsKind(err, model.ProtocolError) {
			t.Fatalf("image %q: got %v", image, err)
		}
	}
	if err := s.Enroll("../escape", []byte("a")); !model.IsKind(err, model.ProtocolError) {
		t.Fatalf("unsafe name: %v", err)
	}

	if s.Len() != 0 {
		t.Fatal("entry installed")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("files left behind: %v", entries)
	}
}

func TestDelete(t *testing.T) {
	s, _, dir := newTestStore(t)

	if err := s.Delete("nobody"); err != nil {
		t.Fatalf("missing name: %v", err)
	}

	if err := s.Enroll("dave", []byte(features("d", 11))); err != nil {
		t.Fatal(err)
	}
	desc := s.records["dave"].Descriptors.(*fakeDescriptors)
	if err := s.Delete("dave"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 || !desc.closed.Load() {
		t.Fatal("entry not evicted")
	}
	if _, err := os.Stat(filepath.Join(dir, "dave.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}
}

func TestLoadSkipsUnusableFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"erin.jpg":     features("e", 12),
		"frank.JPG":    features("g", 12),
		"broken.jpg":   "corrupt",
		"blank.jpg":    "",
		".enroll-1234": features("h", 12),
		"notes.txt":    features("i", 12),
		".hidden.jpg":  features("j", 12),
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewStore(dir, &fakeExtractor{}, analytics.DefaultMinScore)
	defer s.Close()
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	names := s.Names()
	if len(names) != 1 || names[0] != "erin" {
		t.Fatalf("names %v", names)
	}
}

func TestRecognizeTieBreak(t *testing.T) {
	s, ex, _ := newTestStore(t)

	shared := features("s", 12)
	for _, name := range []string{"zoe", "amy", "kim"} {
		if err := s.Enroll(name, []byte(shared)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 20; i++ {
		if label, _ := s.Recognize(query(t, ex, shared)); label != "amy" {
			t.Fatalf("label %s", label)
		}
	}
}

func TestRecognizeDuringReEnroll(t *testing.T) {
	s, ex, _ := newTestStore(t)
	if err := s.Enroll("gina", []byte(features("g", 20))); err != nil {
		t.Fatal(err)
	}

	q := query(t, ex, features("g", 20))
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.Recognize(q)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if err := s.Enroll("gina", []byte(features("g", 20))); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	if n := ex.useAfterClose.Load(); n != 0 {
		t.Fatalf("%d matches against released descriptors", n)
	}
}

func startServer(t *testing.T, s IService) (*Server, string, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	enrollLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deleteLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(s, 0, 2*time.Second)
	go srv.ServeEnroll(ctx, enrollLn)
	go srv.ServeDelete(ctx, deleteLn)
	return srv, enrollLn.Addr().String(), deleteLn.Addr().String()
}

func TestServerRoundTrip(t *testing.T) {
	s, _, dir := newTestStore(t)
	srv, enrollAddr, deleteAddr := startServer(t, s)
	client := NewClient(time.Second)
	ctx := context.Background()

	if err := client.Enroll(ctx, enrollAddr, "hank", []byte(features("h", 14))); err != nil {
		t.Fatal(err)
	}
	eventually(t, "enrollment", func() bool { return s.Len() == 1 })
	if _, err := os.Stat(filepath.Join(dir, "hank.jpg")); err != nil {
		t.Fatal(err)
	}

	if err := client.Delete(ctx, deleteAddr, "hank"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "deletion", func() bool { return s.Len() == 0 })

	if err := client.Delete(ctx, deleteAddr, "hank"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "second deletion", func() bool {
		_, deleted, _ := srv.Counts()
		return deleted == 2
	})
}

func TestServerRejectsMismatchedLength(t *testing.T) {
	s, _, dir := newTestStore(t)
	srv, enrollAddr, _ := startServer(t, s)

	image := features("m", 12)
	total := 2 + len("ivy") + len(image)
	for _, declared := range []int{total + 5, total - 5} {
		conn, err := net.Dial("tcp", enrollAddr)
		if err != nil {
			t.Fatal(err)
		}
		buf := []byte{byte(declared >> 24), byte(declared >> 16), byte(declared >> 8), byte(declared), 0, 3}
		buf = append(buf, "ivy"...)
		buf = append(buf, image...)
		if _, err := conn.Write(buf); err != nil {
			t.Fatal(err)
		}
		conn.(*net.TCPConn).CloseWrite()
		conn.Close()
	}

	eventually(t, "rejections", func() bool {
		_, _, rejected := srv.Counts()
		return rejected == 2
	})
	if s.Len() != 0 {
		t.Fatal("mismatched request enrolled")
	}
	if _, err := os.Stat(filepath.Join(dir, "ivy.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("mismatched request persisted")
	}

	// the server keeps serving
	if err := NewClient(time.Second).Enroll(context.Background(), enrollAddr, "ivy", []byte(image)); err != nil {
		t.Fatal(err)
	}
	eventually(t, "valid enrollment", func() bool { return s.Len() == 1 })
}

func TestClientRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	err = NewClient(time.Second).Delete(context.Background(), addr, "nobody")
	if !model.IsKind(err, model.ConnectionError) || model.CauseOf(err) != model.CauseRefused {
		t.Fatalf("got %v", err)
	}
}

func TestClientRejectsBadRequestLocally(t *testing.T) {
	err := NewClient(time.Second).Enroll(context.Background(), "127.0.0.1:1", "a/b", []byte("x"))
	if !model.IsKind(err, model.ProtocolError) {
		t.Fatalf("got %v", err)
	}
}

func TestWatchPicksUpOutOfBandChanges(t *testing.T) {
	s, _, dir := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "jill.jpg")
	if err := os.WriteFile(path, []byte(features("j", 12)), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, "watched load", func() bool { return s.Len() == 1 })

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	eventually(t, "watched eviction", func() bool { return s.Len() == 0 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
