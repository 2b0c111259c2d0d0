package data

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
)

var ErrDeviceNotFound = errors.New("device not found")

// BuiltinDevices seed an empty registry.
var BuiltinDevices = []model.Device{
	{Name: "loongson-camera", Address: "192.168.137.1", Port: 8888},
	{Name: "backup-camera", Address: "192.168.137.104", Port: 8890},
}

type defaultBinding struct {
	Default string `json:"default"`
}

type filesDBService struct {
	CfgSvc config.IService

	// serialises read-modify-write cycles on the json files
	mu sync.Mutex
}

func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) RetrieveDevices() ([]model.Device, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.devices()
}

func (svc *filesDBService) devices() ([]model.Device, error) {
	devices := []model.Device{}

	input := svc.CfgSvc.GetDevicesFile()
	data, err := os.ReadFile(input)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return devices, err
	}

	if len(data) > 0 {
		err = json.Unmarshal(data, &devices)
		if err != nil {
			return devices, xerrors.Errorf("corrupt device registry %s: %w", input, err)
		}
	}

	if len(devices) == 0 {
		devices = slices.Clone(BuiltinDevices)
		err = writeJSON(input, devices)
		if err != nil {
			return devices, err
		}
	}

	return devices, nil
}

func (svc *filesDBService) RetrieveDeviceByName(name string) (model.Device, error) {
	devices, err := svc.RetrieveDevices()
	if err != nil {
		return model.Device{}, err
	}

	for _, device := range devices {
		if device.Name == name {
			return device, nil
		}
	}

	return model.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// AddDevice inserts the device or replaces the entry with the same name.
func (svc *filesDBService) AddDevice(device model.Device) error {
	device.Name = strings.TrimSpace(device.Name)
	device.Address = strings.TrimSpace(device.Address)
	if device.Name == "" || device.Address == "" {
		return errors.New("device name and address are required")
	}
	if device.Port <= 0 || device.Port > 65535 {
		return fmt.Errorf("device port %d out of range", device.Port)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	devices, err := svc.devices()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(devices, func(d model.Device) bool { return d.Name == device.Name })
	if i >= 0 {
		devices[i] = device
	} else {
		devices = append(devices, device)
	}

	return writeJSON(svc.CfgSvc.GetDevicesFile(), devices)
}

// RetrieveDefaultDevice returns the bound default, or the first registered
// device when nothing (or a since-removed device) is bound.
func (svc *filesDBService) RetrieveDefaultDevice() (model.Device, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	devices, err := svc.devices()
	if err != nil {
		return model.Device{}, err
	}

	binding := defaultBinding{}
	data, err := os.ReadFile(svc.CfgSvc.GetDefaultDeviceFile())
	if err == nil {
		// WARNING: a corrupt binding falls back to the first device
		_ = json.Unmarshal(data, &binding)
	}

	for _, device := range devices {
		if device.Name == binding.Default {
			return device, nil
		}
	}

	return devices[0], nil
}

func (svc *filesDBService) UpdateDefaultDevice(name string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	devices, err := svc.devices()
	if err != nil {
		return err
	}

	if !slices.ContainsFunc(devices, func(d model.Device) bool { return d.Name == name }) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	return writeJSON(svc.CfgSvc.GetDefaultDeviceFile(), defaultBinding{Default: name})
}

// RetrieveRecordings lists the video files in the recordings folder, newest first.
func (svc *filesDBService) RetrieveRecordings() ([]model.Recording, error) {
	recordings := []model.Recording{}

	folder := svc.CfgSvc.GetRecordingsFolder()
	entries, err := os.ReadDir(folder)
	if errors.Is(err, fs.ErrNotExist) {
		return recordings, nil
	}
	if err != nil {
		return recordings, err
	}

	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".avi" && ext != ".mp4") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		recordings = append(recordings, model.Recording{
			Name:     entry.Name(),
			Path:     filepath.Join(folder, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime().Unix(),
		})
	}

	slices.SortFunc(recordings, func(a, b model.Recording) int {
		if c := cmp.Compare(b.Modified, a.Modified); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	return recordings, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		customErr.Processor = "N/A"
		customErr.Inner = e
		customErr.Message = e.Error()
		customErr.StackTrace = "N/A"
	default:
		customErr.Processor = "N/A"
		customErr.Inner = fmt.Errorf("%v", err)
		customErr.Message = customErr.Inner.Error()
		customErr.StackTrace = "N/A"
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	// Create an error object to persist
	errorData := struct {
		Timestamp  int64                  `json:"timestamp"`
		Processor  string                 `json:"processor"`
		Inner      string                 `json:"innerError"`
		Message    string                 `json:"message"`
		StackTrace string                 `json:"stackTrace"`
		Misc       map[string]interface{} `json:"misc"`
	}{
		Timestamp:  time.Now().Unix(),
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(errorData, "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "session-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewFramerStats(stats model.FramerStats) error {
	stats.Timestamp = time.Now().Unix()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "framer-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewStreamerStats(stats model.StreamerStats) error {
	stats.Timestamp = time.Now().Unix()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "streamer-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewAlerterStats(stats model.AlerterStats) error {
	stats.Timestamp = time.Now().Unix()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "alerter-stats", svc.CfgSvc)
}

func (svc *filesDBService) NewDeviceStats(stats model.DeviceStats) error {
	stats.Timestamp = time.Now().Unix()
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "device-stats", svc.CfgSvc)
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntites[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)
	return writeJSON(entityFile(filename, cfgsvc), entities)
}

func retrieveEntites[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityFile(filename, cfgsvc))
	if err != nil {
		// WARNING: file not found, return empty slice
		return entities, nil
	}

	err = json.Unmarshal(data, &entities)
	if err != nil {
		return nil, xerrors.Errorf("corrupt %s entities: %w", filename, err)
	}

	return entities, nil
}

func entityFile(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetInputFolder(), filename+".json")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	return os.WriteFile(path, data, 0o644)
}
