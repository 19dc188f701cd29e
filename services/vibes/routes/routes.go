// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vibesml/vibes/services/vibes/experiments"
	"github.com/vibesml/vibes/services/vibes/fitcache"
	"github.com/vibesml/vibes/services/vibes/handlers"
)

func SetupRoutes(router *gin.Engine, store *experiments.Store, cache *fitcache.Cache,
	broadcaster *handlers.EventBroadcaster, registry *prometheus.Registry) {

	router.GET("/health", handlers.HealthCheck)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		exps := v1.Group("/experiments")
		{
			exps.POST("", handlers.CreateExperiment(store))
			exps.GET("", handlers.ListExperiments(store))
			exps.GET("/:name", handlers.GetExperiment(store))
			exps.DELETE("/:name", handlers.DeleteExperiment(store))
			exps.GET("/:name/data", handlers.InspectExperiment(store))
			exps.POST("/:name/events", handlers.UploadEvents(store, broadcaster))
			exps.GET("/:name/events/ws", handlers.TailEvents(store, broadcaster))
			exps.GET("/:name/posterior", handlers.GetPosterior(store, cache))
		}
	}
}
