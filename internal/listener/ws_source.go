package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/pkg/solana"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultTokenDecimals  = 6
)

// Sink receives trades decoded by a source.
type Sink interface {
	Observe(ctx context.Context, t ObservedTrade) (Observation, error)
}

type WebsocketOptions struct {
	Commitment     string
	ReconnectDelay time.Duration
	TokenDecimals  uint8
}

// WebsocketSource subscribes to program logs mentioning the asset mint and
// forwards every bonding-curve trade event to a sink.
type WebsocketSource struct {
	endpoint string
	assetID  string
	opts     WebsocketOptions
	dialer   *websocket.Dialer
	log      *logrus.Entry
}

func NewWebsocketSource(endpoint, assetID string, opts WebsocketOptions, log *logrus.Entry) (*WebsocketSource, error) {
	if endpoint == "" {
		return nil, errors.New("websocket endpoint is required")
	}
	if assetID == "" {
		return nil, errors.New("asset id is required")
	}
	if opts.Commitment == "" {
		opts.Commitment = "confirmed"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.TokenDecimals == 0 {
		opts.TokenDecimals = defaultTokenDecimals
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebsocketSource{
		endpoint: endpoint,
		assetID:  assetID,
		opts:     opts,
		dialer:   websocket.DefaultDialer,
		log:      log.WithField("source", "websocket"),
	}, nil
}

type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Run keeps a subscription open until ctx is done, reconnecting after every failure.
func (s *WebsocketSource) Run(ctx context.Context, sink Sink) error {
	for {
		err := s.session(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Warn("websocket session ended, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

func (s *WebsocketSource) session(ctx context.Context, sink Sink) error {
	c, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	subscribe := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{s.assetID}},
			map[string]interface{}{"commitment": s.opts.Commitment},
		},
	}
	if err := c.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.WithField("asset_id", s.assetID).Info("subscribed to trade logs")

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg logsNotification
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.WithError(err).Warn("malformed websocket message")
			continue
		}
		if msg.Method != "logsNotification" {
			continue
		}
		s.handle(ctx, sink, msg)
	}
}

func (s *WebsocketSource) handle(ctx context.Context, sink Sink, msg logsNotification) {
	value := msg.Params.Result.Value
	if len(value.Err) > 0 && string(value.Err) != "null" {
		return
	}

	for _, ev := range solana.TradeEventsFromLogs(value.Logs) {
		if ev.Mint.String() != s.assetID {
			continue
		}
		trade := ObservedTrade{
			AssetID:     s.assetID,
			Signature:   value.Signature,
			Trader:      ev.User.String(),
			Side:        models.TradeSideSell,
			SolAmount:   solana.LamportsToSol(ev.SolAmount),
			TokenAmount: solana.RawToUi(ev.TokenAmount, s.opts.TokenDecimals),
			Venue:       models.VenueBondingCurve,
			Timestamp:   ev.Timestamp,
		}
		if ev.IsBuy {
			trade.Side = models.TradeSideBuy
		}
		if _, err := sink.Observe(ctx, trade); err != nil {
			s.log.WithError(err).WithField("signature", value.Signature).Error("observe trade failed")
		}
	}
}
