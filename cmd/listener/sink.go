package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/listener"
)

type tradeRecorder interface {
	TradeObserved(outcome string)
}

// meteredSink counts every observation by outcome before handing it back to the source.
type meteredSink struct {
	next    listener.Sink
	metrics tradeRecorder
	log     *logrus.Entry
}

func (s *meteredSink) Observe(ctx context.Context, t listener.ObservedTrade) (listener.Observation, error) {
	obs, err := s.next.Observe(ctx, t)
	s.metrics.TradeObserved(outcome(obs, err))
	if err != nil {
		s.log.WithError(err).WithField("signature", t.Signature).Warn("failed to record trade")
	}
	return obs, err
}

func outcome(obs listener.Observation, err error) string {
	switch {
	case err != nil:
		return "error"
	case obs.Ignored:
		return "ignored"
	case obs.Duplicate:
		return "duplicate"
	case obs.System:
		return "system"
	case obs.Qualified:
		return "qualified"
	default:
		return "unqualified"
	}
}
