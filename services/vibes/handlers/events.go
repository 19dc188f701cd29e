// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vibesml/vibes/pkg/validation"
	"github.com/vibesml/vibes/services/vibes/experiments"
)

// UploadEventsRequest is the body for POST /v1/experiments/:name/events.
type UploadEventsRequest struct {
	Events []map[string]any `json:"events" validate:"required,min=1"`
}

// EventBroadcaster fans appended event batches out to websocket
// subscribers, keyed by experiment name. Slow subscribers are dropped
// rather than allowed to block uploads.
type EventBroadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan []map[string]any]struct{}
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subs: make(map[string]map[chan []map[string]any]struct{})}
}

// Subscribe registers a listener for one experiment. The returned cancel
// func must be called exactly once.
func (b *EventBroadcaster) Subscribe(experiment string) (<-chan []map[string]any, func()) {
	ch := make(chan []map[string]any, 16)
	b.mu.Lock()
	if b.subs[experiment] == nil {
		b.subs[experiment] = make(map[chan []map[string]any]struct{})
	}
	b.subs[experiment][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs[experiment], ch)
		if len(b.subs[experiment]) == 0 {
			delete(b.subs, experiment)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a batch to every subscriber of the experiment,
// skipping any whose buffer is full.
func (b *EventBroadcaster) Publish(experiment string, events []map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[experiment] {
		select {
		case ch <- events:
		default:
		}
	}
}

func UploadEvents(store *experiments.Store, broadcaster *EventBroadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := validation.ValidateExperimentName(name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req UploadEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := validation.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := store.AppendEvents(c.Request.Context(), name, req.Events); err != nil {
			fail(c, err)
			return
		}
		if broadcaster != nil {
			broadcaster.Publish(name, req.Events)
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "events": len(req.Events)})
	}
}

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// TailEvents upgrades to a websocket and streams every event batch
// appended to the experiment until the client disconnects.
func TailEvents(store *experiments.Store, broadcaster *EventBroadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := validation.ValidateExperimentName(name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Reject unknown experiments before upgrading.
		if _, err := store.Get(c.Request.Context(), name); err != nil {
			fail(c, err)
			return
		}

		ws, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "experiment", name, "error", err)
			return
		}
		defer ws.Close()

		batches, cancel := broadcaster.Subscribe(name)
		defer cancel()

		// Reader goroutine: surfaces client disconnects. Inbound payloads
		// are ignored.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case batch := <-batches:
				ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := ws.WriteJSON(gin.H{"experiment": name, "events": batch}); err != nil {
					slog.Warn("failed to write event batch to websocket",
						"experiment", name, "error", err)
					return
				}
			case <-ticker.C:
				ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
