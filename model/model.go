package model

import (
	"fmt"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Device is a capture endpoint known to the viewer. Name is the registry key.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (d Device) StreamAddr() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}

type SessionStats struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Device      string `json:"device"`
	Endpoint    string `json:"endpoint"`
	State       string `json:"state"`
	VideoFrames int    `json:"videoFrames"`
	AudioFrames int    `json:"audioFrames"`
	Dropped     int    `json:"dropped"`
	Errors      int    `json:"errors"`
	Uptime      int64  `json:"uptime"`
	Timestamp   int64  `json:"timestamp"`
}

type FramerStats struct {
	Name          string `json:"name"`
	Camera        string `json:"camera"`
	FPS           int    `json:"fps"`
	Frames        int    `json:"frames"`
	SkippedFrames int    `json:"skippedFrames"`
	Errors        int    `json:"errors"`
	Uptime        int64  `json:"uptime"`
	Timestamp     int64  `json:"timestamp"`
}

type StreamerStats struct {
	Name        string  `json:"name"`
	Device      string  `json:"device"`
	FPS         int     `json:"fps"`
	Frames      int     `json:"frames"`
	Errors      int     `json:"errors"`
	Uptime      int64   `json:"uptime"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}

type AlerterStats struct {
	Name      string `json:"name"`
	Alerts    int    `json:"alerts"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

// DeviceStats is the periodic heartbeat of the capture device.
type DeviceStats struct {
	Device     string  `json:"device"`
	SessionID  string  `json:"sessionId"`
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float64 `json:"memPercent"`
	Templates  int     `json:"templates"`
	Camera     string  `json:"camera"`
	Uptime     int64   `json:"uptime"`
	Timestamp  int64   `json:"timestamp"`
}

// Recording is a session recording found in the recordings folder.
type Recording struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}
