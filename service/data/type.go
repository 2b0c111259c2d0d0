package data

import "github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"

type IService interface {
	RetrieveDevices() ([]model.Device, error)
	RetrieveDeviceByName(name string) (model.Device, error)
	AddDevice(device model.Device) error
	RetrieveDefaultDevice() (model.Device, error)
	UpdateDefaultDevice(name string) error
	RetrieveRecordings() ([]model.Recording, error)

	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	NewFramerStats(stats model.FramerStats) error
	NewStreamerStats(stats model.StreamerStats) error
	NewAlerterStats(stats model.AlerterStats) error
	NewDeviceStats(stats model.DeviceStats) error
}
