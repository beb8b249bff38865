// Package api exposes the extraction run over HTTP: health, live status,
// accumulated results, failure snapshots and an SSE event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
	"github.com/opextools/portal_agent/internal/runner"
	"github.com/opextools/portal_agent/internal/snapshot"
)

// Service is the surface the HTTP layer needs from the run orchestration.
type Service interface {
	Status(ctx context.Context) (runner.StatusInfo, error)
	Results(ctx context.Context) ([]portal.Result, error)
	ListSnapshots(ctx context.Context) ([]snapshot.Meta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// NewServer builds the HTTP handler for the status API. The broker feeds
// the /api/v1/events SSE endpoint.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Portal Agent API", "1.0.0")
	api := humachi.New(router, cfg)

	registerStatusHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	router.Get("/api/v1/events", relay.SSEHandler(broker))

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, snapshot.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	var coded *portal.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case portal.CodeInput, portal.CodeConfiguration:
			return huma.Error400BadRequest(coded.Message)
		case portal.CodeSession:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
