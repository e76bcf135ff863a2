// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package event provides the in-process domain event bus. Producers publish
// typed events (text changes, workflow advances, completed voting sessions)
// and collaborators subscribe to them through channels, callbacks or custom
// Subscriber implementations.
package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 32
	AsyncQueueSize      = 1024
	AsyncWorkerPoolSize = 4
)

// AllEvents subscribes to every event type
const AllEvents EventType = "*"

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber receives events from the bus. Close must be idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

type subscription struct {
	sub  Subscriber
	kind string
}

type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]subscription
	metrics     *eventMetrics
	logger      *slog.Logger
	asyncQueue  chan Event
	done        chan struct{}
	workers     sync.WaitGroup
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	stopOnce    sync.Once
}

// NewEventBus creates an EventBus and starts its async delivery workers. Call
// Stop to release them.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]subscription),
		logger:      logger.With("component", "event"),
		asyncQueue:  make(chan Event, AsyncQueueSize),
		done:        make(chan struct{}),
	}
	if promRegistry != nil {
		e.metrics = newEventMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		e.workers.Add(1)
		go e.asyncWorker()
	}
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.workers.Done()
	for {
		select {
		case <-e.done:
			return
		case evt := <-e.asyncQueue:
			e.Publish(evt.Type, evt)
		}
	}
}

// Subscribe returns a buffered channel receiving events of the given type.
// The channel is closed on Unsubscribe or Stop.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	chSub := newChannelSubscriber(EventQueueSize)
	subId := e.register(eventType, chSub, "channel")
	return subId, chSub.ch
}

// SubscribeFunc runs handlerFunc for each event of the given type on a
// dedicated goroutine
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for evt := range evtCh {
			handlerFunc(evt)
		}
	}()
	return subId
}

// RegisterSubscriber attaches a custom Subscriber
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.register(eventType, sub, "custom")
}

func (e *EventBus) register(
	eventType EventType,
	sub Subscriber,
	kind string,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	subId := e.lastSubId
	subs, ok := e.subscribers[eventType]
	if !ok {
		subs = make(map[EventSubscriberId]subscription)
		e.subscribers[eventType] = subs
	}
	subs[subId] = subscription{sub: sub, kind: kind}
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), kind).Inc()
	}
	return subId
}

// Unsubscribe removes a subscriber and closes it
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	s, ok := e.subscribers[eventType][subId]
	if ok {
		delete(e.subscribers[eventType], subId)
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(string(eventType), s.kind).Dec()
		}
	}
	e.mu.Unlock()
	if ok {
		s.sub.Close()
	}
}

// Publish delivers an event synchronously to the subscribers of its type and
// to wildcard subscribers. A subscriber whose delivery fails is removed.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	type target struct {
		eventType EventType
		id        EventSubscriberId
		s         subscription
	}
	e.mu.RLock()
	targets := make([]target, 0, len(e.subscribers[eventType])+len(e.subscribers[AllEvents]))
	for _, key := range []EventType{eventType, AllEvents} {
		if key == AllEvents && eventType == AllEvents {
			continue
		}
		for id, s := range e.subscribers[key] {
			targets = append(targets, target{eventType: key, id: id, s: s})
		}
	}
	e.mu.RUnlock()
	for _, t := range targets {
		if err := deliver(t.s.sub, evt); err != nil {
			e.Unsubscribe(t.eventType, t.id)
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), t.s.kind).Inc()
			}
			e.logger.Debug(
				"event delivery failed, subscriber removed",
				"type", eventType,
				"subscriber", t.id,
				"error", err,
			)
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

func deliver(sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Deliver(evt)
}

// PublishAsync queues an event for delivery by the worker pool. It returns
// false if the bus is stopped or the queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	evt.Type = eventType
	select {
	case e.asyncQueue <- evt:
		return true
	default:
		e.logger.Warn("async event queue full, dropping event", "type", eventType)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").Inc()
		}
		return false
	}
}

// Stop halts the async workers and closes every subscriber. It is safe to
// call more than once.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.workers.Wait()
		e.mu.Lock()
		subs := e.subscribers
		e.subscribers = make(map[EventType]map[EventSubscriberId]subscription)
		e.mu.Unlock()
		for _, byId := range subs {
			for _, s := range byId {
				s.sub.Close()
			}
		}
		if e.metrics != nil {
			e.metrics.subscribers.Reset()
		}
	})
}

type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{
		ch: make(chan Event, buffer),
	}
}

// Deliver blocks until the event is buffered. The read lock keeps Close from
// closing the channel under an in-flight send.
func (c *channelSubscriber) Deliver(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	c.ch <- evt
	return nil
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
