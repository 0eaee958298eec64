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

package services

import (
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const (
	DefaultProgressHistory = 256 // Generations whose events are kept for replay.
	subscriberBuffer       = 32
)

type subscriber struct {
	ch     chan model.ProgressEvent
	closed bool
}

// ProgressHub fans progress events out to subscribers of a generation and
// keeps the events of recent generations so late subscribers can replay them.
type ProgressHub struct {
	mu          sync.Mutex
	history     map[string][]model.ProgressEvent
	order       []string // Generation ids, oldest first.
	subscribers map[string]map[*subscriber]struct{}
	maxHistory  int
}

func NewProgressHub(maxHistory int) *ProgressHub {
	if maxHistory <= 0 {
		maxHistory = DefaultProgressHistory
	}
	return &ProgressHub{
		history:     make(map[string][]model.ProgressEvent),
		subscribers: make(map[string]map[*subscriber]struct{}),
		maxHistory:  maxHistory,
	}
}

// Publish records the event and delivers it to current subscribers. A slow
// subscriber misses events rather than blocking the pipeline. Subscribers are
// closed after a terminal event.
func (h *ProgressHub) Publish(event model.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := event.GenerationId
	if _, ok := h.history[id]; !ok {
		h.order = append(h.order, id)
		h.evict()
	}
	h.history[id] = append(h.history[id], event)

	for sub := range h.subscribers[id] {
		select {
		case sub.ch <- event:
		default:
			slog.Warn("dropping progress event for slow subscriber", "generation_id", id, "type", event.Type)
		}
		if event.Terminal() {
			h.closeLocked(id, sub)
		}
	}
}

// Subscribe returns the events published so far and a channel for the rest.
// The channel is closed after a terminal event or when cancel is called. For
// a finished generation the channel is already closed.
func (h *ProgressHub) Subscribe(id string) (replay []model.ProgressEvent, events <-chan model.ProgressEvent, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	past := h.history[id]
	replay = make([]model.ProgressEvent, len(past))
	copy(replay, past)

	sub := &subscriber{ch: make(chan model.ProgressEvent, subscriberBuffer)}
	if len(past) > 0 && past[len(past)-1].Terminal() {
		sub.closed = true
		close(sub.ch)
		return replay, sub.ch, func() {}
	}

	if h.subscribers[id] == nil {
		h.subscribers[id] = make(map[*subscriber]struct{})
	}
	h.subscribers[id][sub] = struct{}{}

	return replay, sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closeLocked(id, sub)
	}
}

// History returns a copy of the events recorded for a generation.
func (h *ProgressHub) History(id string) []model.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.ProgressEvent, len(h.history[id]))
	copy(out, h.history[id])
	return out
}

func (h *ProgressHub) closeLocked(id string, sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(h.subscribers[id], sub)
	if len(h.subscribers[id]) == 0 {
		delete(h.subscribers, id)
	}
}

// evict drops the oldest generations that nobody is listening to.
func (h *ProgressHub) evict() {
	for len(h.order) > h.maxHistory {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.history, oldest)
		for sub := range h.subscribers[oldest] {
			h.closeLocked(oldest, sub)
		}
	}
}
