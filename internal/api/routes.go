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

// Package api contains the gin route definitions for the server.
//
// Routes:
//   - POST /api/v1/generations             run a generation (?async=true queues it)
//   - GET  /api/v1/generations             list recent generations
//   - GET  /api/v1/generations/:id         fetch one generation
//   - GET  /api/v1/generations/:id/stream  signed URL of the uploaded video
//   - GET  /api/v1/generations/:id/events  websocket progress events
//   - GET  /api/v1/styles                  configured style presets
//   - GET  /api/v1/stats                   run counters
//   - GET  /health                         liveness
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/services"
)

// NewRouter builds the gin engine with tracing and CORS middleware.
func NewRouter(serviceName string, service *services.GenerationService) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "steps": service.Steps()})
	})

	apiV1 := r.Group("/api/v1")
	{
		GenerationRouter(apiV1, service)
		StyleRouter(apiV1, service)
		Dashboard(apiV1, service)
	}
	return r
}

func GenerationRouter(r *gin.RouterGroup, service *services.GenerationService) {
	generations := r.Group("/generations")
	{
		generations.POST("", func(c *gin.Context) {
			req := &model.GenerationRequest{}
			if err := c.ShouldBindJSON(req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a prompt"})
				return
			}

			if async, _ := strconv.ParseBool(c.Query("async")); async {
				gen, err := service.Submit(c.Request.Context(), req)
				if err != nil {
					writeError(c, err)
					return
				}
				c.JSON(http.StatusAccepted, gin.H{"id": gen.Id, "status": gen.Status})
				return
			}

			gen, err := service.Run(c.Request.Context(), req)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gen)
		})

		generations.GET("", func(c *gin.Context) {
			limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultListLimit)))
			if err != nil {
				limit = services.DefaultListLimit
			}
			out, err := service.List(c.Request.Context(), limit)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		generations.GET("/:id", func(c *gin.Context) {
			out, err := service.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		generations.GET("/:id/stream", func(c *gin.Context) {
			signedURL, err := service.StreamURL(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": signedURL})
		})

		generations.GET("/:id/events", func(c *gin.Context) {
			ProgressEvents(c, service.Progress(), c.Param("id"))
		})
	}
}

func StyleRouter(r *gin.RouterGroup, service *services.GenerationService) {
	r.GET("/styles", func(c *gin.Context) {
		c.JSON(http.StatusOK, service.Styles())
	})
}

// writeError maps service errors to status codes.
func writeError(c *gin.Context, err error) {
	var pipelineErr *services.PipelineError
	switch {
	case errors.As(err, &pipelineErr):
		slog.ErrorContext(c.Request.Context(), "generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "generation failed",
			"details":    pipelineErr.Details,
			"generation": pipelineErr.Generation,
		})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
