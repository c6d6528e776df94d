// Package api exposes the engine over HTTP: resource discovery and
// stateless scenario evaluation. Each evaluation request runs on a fresh
// instance that is finalized before the response is written.
package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/omsai/beagle-lib/internal/engine"
	"github.com/omsai/beagle-lib/internal/logger"
	"github.com/omsai/beagle-lib/internal/resource"
)

type Server struct {
	engine *engine.Engine
	log    logger.Logger
}

func NewServer(e *engine.Engine, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{engine: e, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/resources", s.handleResources)
	e.GET("/v1/instances", s.handleInstances)
	e.POST("/v1/likelihoods", s.handleEvaluate)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResources(c *echo.Context) error {
	resources := s.engine.Resources()
	out := make([]ResourceInfo, len(resources))
	for i, r := range resources {
		out[i] = resourceInfo(r)
	}
	return writeJSON(c, http.StatusOK, ResourceList{Resources: out})
}

func (s *Server) handleInstances(c *echo.Context) error {
	instances := s.engine.Instances()
	out := make([]InstanceInfo, len(instances))
	for i, in := range instances {
		out[i] = instanceInfo(in)
	}
	return writeJSON(c, http.StatusOK, InstanceList{Instances: out})
}

func (s *Server) handleEvaluate(c *echo.Context) error {
	requestID := "eval_" + uuid.NewString()
	req, err := decodeJSON[EvaluateRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, requestID, "invalid_request", err.Error())
	}

	sc, opts, err := req.toScenario()
	if err != nil {
		return writeError(c, http.StatusBadRequest, requestID, "invalid_request", err.Error())
	}

	result, err := sc.Run(s.engine, opts)
	if err != nil {
		status := http.StatusUnprocessableEntity
		kind := "evaluation_failed"
		if isClientError(err) {
			status = http.StatusBadRequest
			kind = "invalid_request"
		}
		s.log.Warn("evaluation failed", "request_id", requestID, "err", err)
		return writeError(c, status, requestID, kind, err.Error())
	}

	s.log.Debug("evaluation complete",
		"request_id", requestID,
		"resource", result.Resource,
		"patterns", len(result.LogLikelihoods),
	)
	return writeJSON(c, http.StatusOK, EvaluateResponse{
		RequestID:      requestID,
		Resource:       result.Resource,
		LogLikelihoods: result.LogLikelihoods,
		Total:          result.Total,
	})
}

func isClientError(err error) bool {
	// Resource selection failures come from the caller's flags.
	return errors.Is(err, resource.ErrNoResource)
}
