package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"treasurycontrol/pkg/config"
)

// Deliveries is a message stream; *config.Consumer implements it.
type Deliveries interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

// QueueSource reads JSON encoded ObservedTrade messages from a queue.
type QueueSource struct {
	deliveries Deliveries
	assetID    string
	log        *logrus.Entry
}

func NewQueueSource(deliveries Deliveries, assetID string, log *logrus.Entry) *QueueSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &QueueSource{deliveries: deliveries, assetID: assetID, log: log.WithField("source", "queue")}
}

func (s *QueueSource) Run(ctx context.Context, sink Sink) error {
	return s.deliveries.Consume(ctx, func(ctx context.Context, body []byte) error {
		return s.Handle(ctx, sink, body)
	})
}

// Handle decodes one message. Undecodable messages are rejected; storage failures are requeued.
func (s *QueueSource) Handle(ctx context.Context, sink Sink, body []byte) error {
	var trade ObservedTrade
	if err := json.Unmarshal(body, &trade); err != nil {
		return fmt.Errorf("%w: %v", config.ErrRejectMessage, err)
	}
	if trade.Signature == "" {
		return fmt.Errorf("%w: missing signature", config.ErrRejectMessage)
	}
	if trade.AssetID == "" {
		trade.AssetID = s.assetID
	}

	obs, err := sink.Observe(ctx, trade)
	if err != nil {
		return err
	}
	if obs.Duplicate {
		s.log.WithField("signature", trade.Signature).Debug("duplicate trade message")
	}
	return nil
}
