package pipeline

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/data"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/events"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/templates"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/session"
)

// ServicesFactory carries the services a mode processor hands to the
// pipeline stages. Services a mode does not use may be nil.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	TemplatesSvc templates.IService
	EventsSvc    events.IService
}

type FrameData = session.Decoded[gocv.Mat]

// AlertData is an analytics result on its way to the alerter. Mat, when not
// empty, is a clone owned by the receiver.
type AlertData struct {
	Mat       gocv.Mat
	Type      model.EventType
	Device    string
	SessionID string
	Count     int
	Label     string
	Timestamp time.Time
}
