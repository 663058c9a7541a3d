// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package events publishes per-object redaction results to a Pub/Sub
// topic for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"go.chromium.org/luci/common/errors"

	"faceredact/internal/gcperr"
)

// ObjectRef names a stored object.
type ObjectRef struct {
	Bucket     string `json:"bucket"`
	Object     string `json:"object"`
	Generation int64  `json:"generation,omitempty"`
}

// ResultEvent is the JSON message published after an object is
// processed.
type ResultEvent struct {
	ID         string    `json:"id"`
	Source     ObjectRef `json:"source"`
	Output     ObjectRef `json:"output"`
	Status     string    `json:"status"`
	Faces      int       `json:"faces"`
	Mode       string    `json:"mode"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewResultEvent allocates an event with a fresh unique ID.
func NewResultEvent() *ResultEvent {
	return &ResultEvent{ID: uuid.New().String()}
}

// Publisher sends one result event.
type Publisher interface {
	Publish(ctx context.Context, ev *ResultEvent) error
}

// TopicPublisher publishes result events to one Pub/Sub topic.
type TopicPublisher struct {
	topic *pubsub.Topic
}

// NewPublisher verifies the topic exists and returns a publisher on it.
func NewPublisher(ctx context.Context, client *pubsub.Client, topicID string) (*TopicPublisher, error) {
	topic := client.Topic(topicID)
	switch ok, err := topic.Exists(ctx); {
	case err != nil:
		return nil, errors.Annotate(err, "checking topic %q", topicID).Err()
	case !ok:
		return nil, errors.Reason("topic %q does not exist in project %q", topicID, client.Project()).Err()
	}
	return &TopicPublisher{topic: topic}, nil
}

// Publish sends ev and waits for the server to accept it.
func (p *TopicPublisher) Publish(ctx context.Context, ev *ResultEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Annotate(err, "encoding result event").Err()
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"status": ev.Status},
	})
	if _, err := res.Get(ctx); err != nil {
		return gcperr.Classify(errors.Annotate(err, "publishing result event").Err())
	}
	return nil
}

// Stop flushes any buffered publishes. Call once at shutdown.
func (p *TopicPublisher) Stop() {
	p.topic.Stop()
}
