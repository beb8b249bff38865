package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/runner"
)

func registerStatusHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body runner.StatusInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Get current run status", Tags: []string{"Run"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			info, err := svc.Status(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body = info
			return out, nil
		})

	type resultsOutput struct {
		Body struct {
			Results []portal.Result `json:"results"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-results", Method: http.MethodGet, Path: "/api/v1/results", Summary: "List per-record results accumulated so far", Tags: []string{"Run"}},
		func(ctx context.Context, input *struct{}) (*resultsOutput, error) {
			results, err := svc.Results(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &resultsOutput{}
			out.Body.Results = results
			if out.Body.Results == nil {
				out.Body.Results = []portal.Result{}
			}
			return out, nil
		})
}
