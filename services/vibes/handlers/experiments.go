// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the vibes HTTP API.
//
// Handlers are thin: they bind and validate the request, call the store,
// and translate fault sentinels into HTTP status codes. All domain rules
// live in the stores.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vibesml/vibes/pkg/validation"
	"github.com/vibesml/vibes/services/vibes/catalog"
	"github.com/vibesml/vibes/services/vibes/experiments"
	"github.com/vibesml/vibes/services/vibes/faults"
)

// CreateExperimentRequest is the body for POST /v1/experiments.
type CreateExperimentRequest struct {
	Name        string           `json:"name" validate:"required,experiment_name"`
	Type        string           `json:"experiment_type" validate:"required"`
	DisplayName string           `json:"display_name"`
	Events      []map[string]any `json:"events" validate:"required,min=1"`
}

func fail(c *gin.Context, err error) {
	status := faults.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func CreateExperiment(store *experiments.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateExperimentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := validation.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		meta, err := store.Create(c.Request.Context(), req.Name, req.Type, req.DisplayName, req.Events)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, meta)
	}
}

func ListExperiments(store *experiments.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		metas, err := store.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"experiments": metas})
	}
}

func GetExperiment(store *experiments.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := validation.ValidateExperimentName(name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		meta, err := store.Get(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, meta)
	}
}

func DeleteExperiment(store *experiments.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := validation.ValidateExperimentName(name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.Delete(c.Request.Context(), name); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "experiment": name})
	}
}

// InspectExperiment serves one page of experiment data. Query params:
// start and end (RFC 3339, applied only when the table has a timestamp
// column), limit, and offset.
func InspectExperiment(store *experiments.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := validation.ValidateExperimentName(name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts, err := pageOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		page, err := store.Inspect(c.Request.Context(), name, opts)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func pageOptions(c *gin.Context) (catalog.PageOptions, error) {
	opts := catalog.PageOptions{Limit: catalog.DefaultPageLimit}

	if raw := c.Query("start"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, err
		}
		opts.Start = &ts
	}
	if raw := c.Query("end"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, err
		}
		opts.End = &ts
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.Offset = offset
	}
	return opts, nil
}
