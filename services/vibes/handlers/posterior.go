// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibesml/vibes/pkg/validation"
	"github.com/vibesml/vibes/services/vibes/datatypes"
	"github.com/vibesml/vibes/services/vibes/experiments"
	"github.com/vibesml/vibes/services/vibes/faults"
	"github.com/vibesml/vibes/services/vibes/fitcache"
	"github.com/vibesml/vibes/services/vibes/posterior"
)

// GetPosterior computes (or fetches the cached) posterior summary for a
// Bernoulli experiment. The cache is keyed by the experiment's current
// data, so re-requesting after new events triggers exactly one new build.
func GetPosterior(store *experiments.Store, cache *fitcache.Cache) gin.HandlerFunc {
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
		if meta.Type != datatypes.ExperimentTypeBernoulli {
			fail(c, fmt.Errorf("%w: posterior is only available for %s experiments, %s is %s",
				faults.ErrInvalidData, datatypes.ExperimentTypeBernoulli, name, meta.Type))
			return
		}

		dataset, err := store.Data(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}

		artifact, err := cache.GetOrCreate(c.Request.Context(), name, dataset, posterior.FitBernoulli)
		if err != nil {
			fail(c, err)
			return
		}

		var summary datatypes.PosteriorSummary
		if err := artifact.Decode(&summary); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"experiment":  name,
			"fingerprint": fitcache.Fingerprint(name, dataset),
			"posterior":   summary,
		})
	}
}
