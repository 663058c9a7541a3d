// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package notification

import (
	"context"

	"cloud.google.com/go/pubsub"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"

	"faceredact/internal/config"
	"faceredact/internal/metrics"
)

// Handler processes one eligible storage event. A nil return consumes
// the message. An error tagged transient nacks it so Pub/Sub redelivers
// later; any other error consumes the message as poison. The handler is
// never retried here.
type Handler func(context.Context, *Event) error

// Subscriber pulls storage notifications from a Pub/Sub subscription
// and routes each to the handler with exactly one ack or nack.
type Subscriber struct {
	sub     *pubsub.Subscription
	cfg     *config.Config
	handler Handler
}

// NewSubscriber verifies the subscription exists and bounds in-flight
// messages to cfg.Concurrency.
func NewSubscriber(ctx context.Context, client *pubsub.Client, cfg *config.Config, handler Handler) (*Subscriber, error) {
	sub := client.Subscription(cfg.Subscription)
	switch ok, err := sub.Exists(ctx); {
	case err != nil:
		return nil, errors.Annotate(err, "checking subscription %q", cfg.Subscription).Err()
	case !ok:
		return nil, errors.Reason("subscription %q not found in project %q", cfg.Subscription, cfg.Project).Err()
	}
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.Concurrency
	return &Subscriber{
		sub:     sub,
		cfg:     cfg,
		handler: handler,
	}, nil
}

// Run blocks receiving messages until ctx is canceled, then drains the
// handlers already in flight and returns.
func (s *Subscriber) Run(ctx context.Context) error {
	logging.Infof(ctx, "Listening on subscription %q with up to %d in flight", s.cfg.Subscription, s.cfg.Concurrency)
	return s.sub.Receive(ctx, s.handle)
}

func (s *Subscriber) handle(ctx context.Context, m *pubsub.Message) {
	ev, err := ParseMessage(m.Attributes, m.Data)
	if err != nil {
		logging.WithError(err).Errorf(ctx, "Dropping unparsable message %s", m.ID)
		metrics.Event(ctx, metrics.ResultFailed, metrics.ReasonParse)
		m.Ack()
		return
	}
	ev.MessageID = m.ID
	ev.PublishTime = m.PublishTime

	if reason, ok := Eligible(ev, s.cfg); !ok {
		logging.Debugf(ctx, "Skipping %s: %s", ev.GSPath(), reason)
		metrics.Event(ctx, metrics.ResultSkipped, string(reason))
		m.Ack()
		return
	}

	switch err := s.handler(ctx, ev); {
	case err == nil:
		m.Ack()
	case transient.Tag.In(err):
		logging.WithError(err).Warningf(ctx, "Transient failure on %s, nacking for redelivery", ev.GSPath())
		metrics.Event(ctx, metrics.ResultFailed, metrics.ReasonTransient)
		m.Nack()
	default:
		logging.WithError(err).Errorf(ctx, "Permanent failure on %s, dropping message", ev.GSPath())
		metrics.Event(ctx, metrics.ResultFailed, metrics.ReasonPermanent)
		m.Ack()
	}
}
