package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/evergrove/storefront/internal/services"
)

// PubSubSyncReportPublisher publishes cart sync drop reports to a Pub/Sub topic.
type PubSubSyncReportPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubSyncReportPublisher constructs a Pub/Sub backed sync report publisher.
func NewPubSubSyncReportPublisher(topic *pubsub.Topic) (*PubSubSyncReportPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub sync report publisher: topic is required")
	}
	return &PubSubSyncReportPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// ReportDroppedItems enqueues a drop report message on the configured topic.
func (p *PubSubSyncReportPublisher) ReportDroppedItems(ctx context.Context, report services.SyncDropReport) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub sync report publisher: not initialised")
	}

	data, err := p.marshal(report)
	if err != nil {
		return fmt.Errorf("marshal sync drop report: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "userId", report.UserID)
	setAttr(attrs, "sessionId", report.SessionID)
	attrs["droppedCount"] = strconv.Itoa(len(report.Dropped))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish sync drop report: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
