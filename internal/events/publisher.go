/**
 * Copyright 2025-present token-gate-go contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package events publishes verification outcomes for operator tooling and
// audit consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"token-gate-go/internal/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TopicOutcomes carries one message per resolved challenge.
const TopicOutcomes = "gatekeeper.outcomes"

// OutcomeEvent is the wire form of a resolved challenge.
type OutcomeEvent struct {
	EventID         string               `json:"event_id"`
	SessionKey      int64                `json:"session_key"`
	UserID          int64                `json:"user_id"`
	Kind            models.OutcomeKind   `json:"kind"`
	Reason          models.OutcomeReason `json:"reason,omitempty"`
	Wallet          string               `json:"wallet,omitempty"`
	Signature       string               `json:"signature,omitempty"`
	RefundSignature string               `json:"refund_signature,omitempty"`
	OccurredAt      time.Time            `json:"occurred_at"`
}

type Publisher struct {
	publisher message.Publisher
}

func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// NewInProcessBus wires a gochannel transport: outcomes stay in process but
// go through the same publisher surface an external broker would.
func NewInProcessBus() (*Publisher, message.Subscriber) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return NewPublisher(bus), bus
}

func (p *Publisher) PublishOutcome(event OutcomeEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("unable to encode outcome event: %w", err)
	}

	if err := p.publisher.Publish(TopicOutcomes, message.NewMessage(event.EventID, payload)); err != nil {
		return fmt.Errorf("unable to publish outcome event: %w", err)
	}

	zap.L().Debug("Outcome event published",
		zap.String("event_id", event.EventID),
		zap.String("kind", string(event.Kind)))
	return nil
}
