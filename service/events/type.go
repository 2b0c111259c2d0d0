package events

import (
	"context"
	"fmt"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
)

// IService publishes analytics events to external subscribers.
type IService interface {
	Publish(event model.Event) error
	Close() error
}

// New builds the sink selected in p. Connecting sinks (mqtt, websocket) are
// ready when New returns.
func New(ctx context.Context, p config.EventsParameters) (IService, error) {
	switch p.Sink {
	case "", "none":
		return NewNone(), nil
	case "mqtt":
		e := NewMQTT(p)
		if err := e.Connect(ctx); err != nil {
			return nil, err
		}
		return e, nil
	case "websocket":
		return NewHub(ctx, p.ListenAddr)
	default:
		return nil, fmt.Errorf("unknown events sink %q", p.Sink)
	}
}

type none struct{}

func NewNone() IService {
	return none{}
}

func (none) Publish(model.Event) error { return nil }

func (none) Close() error { return nil }
