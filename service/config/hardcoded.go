package config

import (
	"path/filepath"
	"slices"
	"time"
)

// Settings is the full configuration tree, as found in settings/config.yaml.
type Settings struct {
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"`
	InputFolder      string `yaml:"input_folder"`
	RecordingsFolder string `yaml:"recordings_folder"`
	TemplatesFolder  string `yaml:"templates_folder"`

	DeviceName    string   `yaml:"device_name"`
	ViewerAddress string   `yaml:"viewer_address"`
	EnrollPort    int      `yaml:"enroll_port"`
	DeletePort    int      `yaml:"delete_port"`
	Cameras       []string `yaml:"cameras"`
	DefaultCamera string   `yaml:"default_camera"`

	Capture           CaptureParameters   `yaml:"capture"`
	Audio             AudioParameters     `yaml:"audio"`
	Recording         RecordingParameters `yaml:"recording"`
	Retry             RetryParameters     `yaml:"retry"`
	ClientTimeout     time.Duration       `yaml:"client_timeout"`
	MaxFrameSize      int                 `yaml:"max_frame_size"`
	WriterQueueDepth  int                 `yaml:"writer_queue_depth"`
	DisplayQueueDepth int                 `yaml:"display_queue_depth"`
	StreamIdleTimeout time.Duration       `yaml:"stream_idle_timeout"`
	Display           bool                `yaml:"display"`

	Analytics      AnalyticsParameters `yaml:"analytics"`
	Events         EventsParameters    `yaml:"events"`
	StatsPeriodS   int                 `yaml:"stats_period_s"`
	WatchTemplates bool                `yaml:"watch_templates"`
}

func Defaults() Settings {
	return Settings{
		ShutdownTimeoutS: 5,
		InputFolder:      "./settings",
		RecordingsFolder: "./records",
		TemplatesFolder:  "./templates",

		DeviceName:    "loongson-camera",
		ViewerAddress: "192.168.137.1:8888",
		EnrollPort:    9999,
		DeletePort:    9998,
		Cameras:       []string{"/dev/video0", "/dev/video2"},
		DefaultCamera: "/dev/video0",

		Capture: CaptureParameters{
			Width:  640,
			Height: 480,
			FPS:    10,
		},
		Audio: AudioParameters{
			SampleRate:  44100,
			Channels:    2,
			ChunkFrames: 1024,
			DeviceHint:  "USB Camera",
			QueueDepth:  16,
		},
		Recording: RecordingParameters{
			Width:  320,
			Height: 240,
			FPS:    10,
			Codec:  "MJPG",
		},
		Retry: RetryParameters{
			Attempts: 3,
			Timeout:  10 * time.Second,
			Backoff:  2 * time.Second,
		},
		ClientTimeout:     5 * time.Second,
		MaxFrameSize:      5 * 1024 * 1024,
		WriterQueueDepth:  32,
		DisplayQueueDepth: 4,
		StreamIdleTimeout: 15 * time.Second,
		Display:           true,

		Analytics: AnalyticsParameters{
			History:         500,
			VarThreshold:    30,
			BinaryThreshold: 180,
			KernelSize:      7,
			MinArea:         2000,
			EpsilonFactor:   0.025,
			MinVertices:     5,
			MaxVertices:     8,
			Window:          time.Second,
			MatchDistance:   60,
			MinScore:        10,
			DetectEvery:     5,
			CascadePaths: []string{
				"/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
				"/usr/share/opencv/haarcascades/haarcascade_frontalface_default.xml",
				"haarcascade_frontalface_default.xml",
			},
		},
		Events: EventsParameters{
			Sink:       "none",
			Broker:     "localhost:1883",
			Topic:      "monitoring/events",
			ClientID:   "loongson-monitor",
			ListenAddr: ":8081",
			CoolDown:   10 * time.Second,
			Snapshots:  true,
		},
		StatsPeriodS:   30,
		WatchTemplates: true,
	}
}

type settingsService struct {
	s Settings
}

// NewHardCoded serves the built-in defaults only.
func NewHardCoded() IService {
	return &settingsService{s: Defaults()}
}

// NewWithSettings serves s as given, without file or environment overlays.
func NewWithSettings(s Settings) IService {
	return &settingsService{s: s}
}

func (svc *settingsService) GetModeMaxShutdownTime() int {
	return svc.s.ShutdownTimeoutS
}

func (svc *settingsService) GetInputFolder() string {
	return svc.s.InputFolder
}

func (svc *settingsService) GetDevicesFile() string {
	return filepath.Join(svc.GetInputFolder(), "devices.json")
}

func (svc *settingsService) GetDefaultDeviceFile() string {
	return filepath.Join(svc.GetInputFolder(), "default-device.json")
}

func (svc *settingsService) GetRecordingsFolder() string {
	return svc.s.RecordingsFolder
}

func (svc *settingsService) GetTemplatesFolder() string {
	return svc.s.TemplatesFolder
}

func (svc *settingsService) GetDeviceName() string {
	return svc.s.DeviceName
}

func (svc *settingsService) GetViewerAddress() string {
	return svc.s.ViewerAddress
}

func (svc *settingsService) GetEnrollPort() int {
	return svc.s.EnrollPort
}

func (svc *settingsService) GetDeletePort() int {
	return svc.s.DeletePort
}

func (svc *settingsService) GetCameraDevices() []string {
	return slices.Clone(svc.s.Cameras)
}

func (svc *settingsService) GetDefaultCamera() string {
	if slices.Contains(svc.s.Cameras, svc.s.DefaultCamera) {
		return svc.s.DefaultCamera
	}
	if len(svc.s.Cameras) > 0 {
		return svc.s.Cameras[0]
	}
	return ""
}

func (svc *settingsService) GetCaptureParameters() CaptureParameters {
	return svc.s.Capture
}

func (svc *settingsService) GetAudioParameters() AudioParameters {
	return svc.s.Audio
}

func (svc *settingsService) GetRecordingParameters() RecordingParameters {
	return svc.s.Recording
}

func (svc *settingsService) GetRetryParameters() RetryParameters {
	return svc.s.Retry
}

func (svc *settingsService) GetClientTimeout() time.Duration {
	return svc.s.ClientTimeout
}

func (svc *settingsService) GetMaxFrameSize() int {
	return svc.s.MaxFrameSize
}

func (svc *settingsService) GetWriterQueueDepth() int {
	return svc.s.WriterQueueDepth
}

func (svc *settingsService) GetDisplayQueueDepth() int {
	return svc.s.DisplayQueueDepth
}

func (svc *settingsService) GetStreamIdleTimeout() time.Duration {
	return svc.s.StreamIdleTimeout
}

func (svc *settingsService) GetDisplayEnabled() bool {
	return svc.s.Display
}

func (svc *settingsService) GetAnalyticsParameters() AnalyticsParameters {
	p := svc.s.Analytics
	p.CascadePaths = slices.Clone(p.CascadePaths)
	return p
}

func (svc *settingsService) GetEventsParameters() EventsParameters {
	return svc.s.Events
}

func (svc *settingsService) GetStatsPeriodicTimeout() int {
	return svc.s.StatsPeriodS
}

func (svc *settingsService) GetTemplatesWatchEnabled() bool {
	return svc.s.WatchTemplates
}
