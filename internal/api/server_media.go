package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/media_sniffer/internal/bridge"
	"github.com/dgnsrekt/media_sniffer/internal/types"
)

func registerMediaHandlers(api huma.API, svc Service) {
	type mediaOutput struct {
		Body bridge.MediaURLs
	}
	huma.Register(api, huma.Operation{OperationID: "get-media-urls", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/media", Summary: "List detected media for a tab", Tags: []string{"Media"}},
		func(ctx context.Context, input *tabIDInput) (*mediaOutput, error) {
			res, err := svc.GetMediaURLs(types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &mediaOutput{Body: res}, nil
		})

	type clearOutput struct {
		Body bridge.ClearResult
	}
	huma.Register(api, huma.Operation{OperationID: "clear-tab-urls", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}/media", Summary: "Clear detected media for a tab", Tags: []string{"Media"}},
		func(ctx context.Context, input *tabIDInput) (*clearOutput, error) {
			res, err := svc.ClearTab(types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &clearOutput{Body: res}, nil
		})

	type analysisOutput struct {
		Body bridge.Analysis
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-tab", Method: http.MethodGet, Path: "/api/v1/tabs/{tab_id}/analysis", Summary: "Summarize detected media for a tab", Tags: []string{"Media"}},
		func(ctx context.Context, input *tabIDInput) (*analysisOutput, error) {
			res, err := svc.AnalyzeTab(types.TabID(input.TabID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &analysisOutput{Body: res}, nil
		})

	type streamingOutput struct {
		Body bridge.StreamingCheck
	}
	huma.Register(api, huma.Operation{OperationID: "is-streaming-url", Method: http.MethodGet, Path: "/api/v1/streaming", Summary: "Check whether a URL is a known watch page", Tags: []string{"Media"}},
		func(ctx context.Context, input *struct {
			URL string `query:"url" required:"true" doc:"Page URL to check"`
		}) (*streamingOutput, error) {
			return &streamingOutput{Body: svc.IsStreamingURL(input.URL)}, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []bridge.TabSummary `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tracked tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			out := &tabsOutput{}
			out.Body.Tabs = svc.Tabs()
			return out, nil
		})
}
