package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NewFile layers the YAML file at path (if it exists) and then the
// environment over the built-in defaults.
func NewFile(path string) (IService, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := applyEnv(&s, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &settingsService{s: s}, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(s *Settings, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SETTINGS_FOLDER", &s.InputFolder)
	str("RECORDINGS_FOLDER", &s.RecordingsFolder)
	str("TEMPLATES_FOLDER", &s.TemplatesFolder)
	str("DEVICE_NAME", &s.DeviceName)
	str("VIEWER_ADDR", &s.ViewerAddress)
	num("ENROLL_PORT", &s.EnrollPort)
	num("DELETE_PORT", &s.DeletePort)
	if v, ok := lookup("CAMERA_DEVICES"); ok && v != "" {
		s.Cameras = splitList(v)
	}
	str("DEFAULT_CAMERA", &s.DefaultCamera)
	str("AUDIO_DEVICE_HINT", &s.Audio.DeviceHint)
	num("MAX_FRAME_SIZE", &s.MaxFrameSize)
	dur("CLIENT_TIMEOUT", &s.ClientTimeout)
	dur("STREAM_IDLE_TIMEOUT", &s.StreamIdleTimeout)
	num("RETRY_ATTEMPTS", &s.Retry.Attempts)
	flag("DISPLAY", &s.Display)
	str("EVENTS_SINK", &s.Events.Sink)
	str("MQTT_BROKER", &s.Events.Broker)
	str("MQTT_TOPIC", &s.Events.Topic)
	str("EVENTS_LISTEN_ADDR", &s.Events.ListenAddr)
	num("SHUTDOWN_TIMEOUT", &s.ShutdownTimeoutS)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate rejects settings the device or viewer cannot run with.
func Validate(s Settings) error {
	var errs []error

	if len(s.Cameras) == 0 {
		errs = append(errs, errors.New("at least one camera device is required"))
	}
	if s.ViewerAddress == "" {
		errs = append(errs, errors.New("viewer_address is required"))
	}
	for name, port := range map[string]int{"enroll_port": s.EnrollPort, "delete_port": s.DeletePort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, port))
		}
	}
	if s.EnrollPort == s.DeletePort {
		errs = append(errs, errors.New("enroll_port and delete_port must differ"))
	}
	if s.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("max_frame_size must be positive"))
	}
	if s.Retry.Attempts <= 0 {
		errs = append(errs, errors.New("retry.attempts must be positive"))
	}
	if s.Recording.Width <= 0 || s.Recording.Height <= 0 || s.Recording.FPS <= 0 {
		errs = append(errs, errors.New("recording size and fps must be positive"))
	}
	if a := s.Analytics; a.MinVertices > a.MaxVertices || a.DetectEvery <= 0 {
		errs = append(errs, errors.New("analytics vertex range or detection cadence invalid"))
	}
	switch s.Events.Sink {
	case "", "none", "mqtt", "websocket":
	default:
		errs = append(errs, fmt.Errorf("unknown events sink %q", s.Events.Sink))
	}

	return errors.Join(errs...)
}
