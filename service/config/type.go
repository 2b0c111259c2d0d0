package config

import "time"

type CaptureParameters struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

type AudioParameters struct {
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	ChunkFrames int    `yaml:"chunk_frames"`
	DeviceHint  string `yaml:"device_hint"`
	QueueDepth  int    `yaml:"queue_depth"`
}

type RecordingParameters struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Codec  string `yaml:"codec"`
}

type RetryParameters struct {
	Attempts int           `yaml:"attempts"`
	Timeout  time.Duration `yaml:"timeout"`
	Backoff  time.Duration `yaml:"backoff"`
}

type AnalyticsParameters struct {
	History         int           `yaml:"history"`
	VarThreshold    float64       `yaml:"var_threshold"`
	BinaryThreshold float64       `yaml:"binary_threshold"`
	KernelSize      int           `yaml:"kernel_size"`
	MinArea         float64       `yaml:"min_area"`
	EpsilonFactor   float64       `yaml:"epsilon_factor"`
	MinVertices     int           `yaml:"min_vertices"`
	MaxVertices     int           `yaml:"max_vertices"`
	Window          time.Duration `yaml:"window"`
	MatchDistance   float64       `yaml:"match_distance"`
	MinScore        int           `yaml:"min_score"`
	DetectEvery     int           `yaml:"detect_every"`
	CascadePaths    []string      `yaml:"cascade_paths"`
}

type EventsParameters struct {
	// Sink is one of none, mqtt, websocket.
	Sink       string `yaml:"sink"`
	Broker     string `yaml:"broker"`
	Topic      string `yaml:"topic"`
	ClientID   string `yaml:"client_id"`
	ListenAddr string `yaml:"listen_addr"`
	// CoolDown applies per recognized label; CountCoolDown to box-count
	// reports, zero publishing every window.
	CoolDown      time.Duration `yaml:"cool_down"`
	CountCoolDown time.Duration `yaml:"count_cool_down"`
	// Snapshots are stored for face events.
	Snapshots bool `yaml:"snapshots"`
}

type IService interface {
	GetModeMaxShutdownTime() int
	GetInputFolder() string
	GetDevicesFile() string
	GetDefaultDeviceFile() string
	GetRecordingsFolder() string
	GetTemplatesFolder() string

	GetDeviceName() string
	GetViewerAddress() string
	GetEnrollPort() int
	GetDeletePort() int
	GetCameraDevices() []string
	GetDefaultCamera() string

	GetCaptureParameters() CaptureParameters
	GetAudioParameters() AudioParameters
	GetRecordingParameters() RecordingParameters
	GetRetryParameters() RetryParameters
	GetClientTimeout() time.Duration
	GetMaxFrameSize() int
	GetWriterQueueDepth() int
	GetDisplayQueueDepth() int
	GetStreamIdleTimeout() time.Duration
	GetDisplayEnabled() bool

	GetAnalyticsParameters() AnalyticsParameters
	GetEventsParameters() EventsParameters
	GetStatsPeriodicTimeout() int
	GetTemplatesWatchEnabled() bool
}
