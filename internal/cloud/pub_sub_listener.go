// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file connects Pub/Sub to the command framework. A PubSubListener
// pulls generation requests from a subscription and runs a cor.Command for
// each one; a PubSubPublisher pushes requests onto a topic for the listener
// (or another worker) to pick up.
//
// Acknowledgement follows the result of the chain. A message is acked when
// the chain finishes without errors, and also when a command rejected it as
// cor.ErrInvalidInput, since redelivering the same payload cannot succeed.
// Any other failure is nacked so the subscription's retry and dead-letter
// policy applies. Each message runs under the subscription's timeout.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	timeout      time.Duration // Per-message budget; zero means none.
	command      cor.Command   // Executed once per received message.
}

func NewPubSubListener(pubsubClient *pubsub.Client, subscriptionID string, timeout time.Duration, command cor.Command) *PubSubListener {
	return &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		timeout:      timeout,
		command:      command,
	}
}

// SetCommand attaches the command to run. The first command set wins.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts receiving in a goroutine and returns immediately. Receive
// stops when ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("message_id", msg.ID))
			slog.InfoContext(spanCtx, "received message", "message_id", msg.ID)

			if m.command == nil {
				span.SetStatus(codes.Error, "no command attached")
				msg.Nack()
				return
			}

			runCtx := spanCtx
			if m.timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(spanCtx, m.timeout)
				defer cancel()
			}

			chainCtx := cor.NewBaseContext()
			defer chainCtx.Close()
			chainCtx.SetContext(runCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			for name, e := range chainCtx.GetErrors() {
				slog.ErrorContext(spanCtx, "error executing chain", "command", name, "error", e)
			}
			if errors.Is(cor.JoinErrors(chainCtx), cor.ErrInvalidInput) {
				slog.WarnContext(spanCtx, "dropping unprocessable message", "message_id", msg.ID)
				msg.Ack()
				return
			}
			msg.Nack()
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

// PubSubPublisher publishes raw payloads to one topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(pubsubClient *pubsub.Client, topicID string) *PubSubPublisher {
	return &PubSubPublisher{topic: pubsubClient.Topic(topicID)}
}

// Publish blocks until the server has accepted the message and returns its id.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
