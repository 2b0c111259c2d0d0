package templates

import (
	"context"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
)

// Extractor computes and compares feature descriptors. The vision service
// provides the ORB implementation.
type Extractor interface {
	DescribeBytes(image []byte) (model.Descriptors, error)
	CountMatches(query, train model.Descriptors) int
}

// Record is one enrolled identity.
type Record struct {
	Name        string
	Path        string
	Size        int64
	ModTime     int64
	Descriptors model.Descriptors
}

type IService interface {
	Load() error
	Enroll(name string, image []byte) error
	Delete(name string) error
	Recognize(query model.Descriptors) (string, int)
	Names() []string
	Len() int
	Watch(ctx context.Context) error
	Close() error
}
