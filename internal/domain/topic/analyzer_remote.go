package topic

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// RemoteOptions tunes the analytics service client. Zero values use the
// defaults.
type RemoteOptions struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
}

func (o RemoteOptions) withDefaults() RemoteOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 2
	}
	if o.RetryWait <= 0 {
		o.RetryWait = 500 * time.Millisecond
	}
	return o
}

// RemoteAnalyzer delegates flow analysis to an external analytics service.
// The plan is POSTed as JSON and the service answers with FlowWeights.
type RemoteAnalyzer struct {
	client *resty.Client
	logger zerolog.Logger
}

type remoteError struct {
	Message string `json:"message"`
}

func NewRemoteAnalyzer(baseURL string, opts RemoteOptions, logger zerolog.Logger) *RemoteAnalyzer {
	opts = opts.withDefaults()
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4*opts.RetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})

	return &RemoteAnalyzer{
		client: client,
		logger: logger.With().Str("component", "remote_analyzer").Logger(),
	}
}

func (a *RemoteAnalyzer) ComputeFlowGraph(ctx context.Context, plan FlowPlan) (FlowWeights, error) {
	var out FlowWeights
	var apiErr remoteError
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(plan).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/flow-graph")
	if err != nil {
		a.logger.Error().Err(err).Int("buckets", len(plan.Buckets)).Msg("analytics service call failed")
		return FlowWeights{}, fmt.Errorf("call analytics service: %w", err)
	}
	if resp.IsError() {
		a.logger.Error().
			Int("status_code", resp.StatusCode()).
			Str("message", apiErr.Message).
			Msg("analytics service returned error")
		return FlowWeights{}, fmt.Errorf("analytics service: status %d: %s", resp.StatusCode(), apiErr.Message)
	}

	a.logger.Debug().
		Int("buckets", len(plan.Buckets)).
		Int("links", len(plan.Links)).
		Dur("latency", resp.Time()).
		Msg("flow graph weighed")
	return out, nil
}
