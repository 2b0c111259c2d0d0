package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

type consoleCalls struct {
	switched []string
	enrolled []string
	forgot   []string
}

func (c *consoleCalls) console(switchErr, enrollErr error) Console {
	return Console{
		Switch: func(_ context.Context, path string) error {
			c.switched = append(c.switched, path)
			return switchErr
		},
		Enroll: func(_ context.Context, name string) error {
			c.enrolled = append(c.enrolled, name)
			return enrollErr
		},
		Forget: func(_ context.Context, name string) error {
			c.forgot = append(c.forgot, name)
			return nil
		},
	}
}

func TestConsoleDispatchesCommands(t *testing.T) {
	calls := &consoleCalls{}
	input := "\n/dev/video2\nenroll alice\nforget bob\nenroll\nenroll a b\n  /dev/video0  \n"

	// a failed enrollment is reported and the console keeps reading
	calls.console(nil, errors.New("no frame received yet")).Run(context.Background(), strings.NewReader(input))

	if !slices.Equal(calls.switched, []string{"/dev/video2", "/dev/video0"}) {
		t.Fatalf("switched %v", calls.switched)
	}
	if !slices.Equal(calls.enrolled, []string{"alice"}) {
		t.Fatalf("enrolled %v", calls.enrolled)
	}
	if !slices.Equal(calls.forgot, []string{"bob"}) {
		t.Fatalf("forgot %v", calls.forgot)
	}
}

func TestConsoleStopsWhenStreamIsGone(t *testing.T) {
	calls := &consoleCalls{}
	calls.console(ErrWriterClosed, nil).Run(context.Background(), strings.NewReader("/dev/video2\nenroll alice\n"))

	if len(calls.switched) != 1 || len(calls.enrolled) != 0 {
		t.Fatalf("console went on after a failed switch: %+v", calls)
	}
}
