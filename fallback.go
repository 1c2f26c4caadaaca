package visionrouter

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is a successful dispatch, possibly served by the default model.
type Outcome struct {
	Response ProviderResponse
	// Model is the id that produced Response.
	Model    string
	Provider string
	// Fallback is non-nil only when the default model served the request.
	Fallback *FallbackOutcome
}

// Coordinator retries a failed model once against the default model.
type Coordinator struct {
	router       *Router
	defaultModel string
}

// NewCoordinator wraps router. The default model comes from the router's
// catalog.
func NewCoordinator(router *Router) *Coordinator {
	return &Coordinator{
		router:       router,
		defaultModel: router.catalog.DefaultModel(),
	}
}

// Analyze dispatches modelID and, if it fails with a retryable error and
// is not the default model, dispatches the default model once. When both
// fail the returned *RouterError carries the primary failure in Err and
// the default model's failure in FallbackErr.
func (c *Coordinator) Analyze(ctx context.Context, modelID string, req ProviderRequest) (Outcome, error) {
	resp, err := c.router.Dispatch(ctx, modelID, req)
	if err == nil {
		return Outcome{Response: resp, Model: modelID, Provider: resp.Provider}, nil
	}

	// The default model is the floor: it never falls back onto itself.
	if modelID == c.defaultModel || !IsRetryable(err) || ctx.Err() != nil {
		return Outcome{}, err
	}

	fbResp, fbErr := c.router.Dispatch(ctx, c.defaultModel, req)
	c.router.meter.OnFallback(FallbackEvent{
		OriginalModel: modelID,
		DefaultModel:  c.defaultModel,
		Reason:        err,
		Success:       fbErr == nil,
	})

	if fbErr != nil {
		primary := &RouterError{Err: err, Model: modelID}
		var rerr *RouterError
		if errors.As(err, &rerr) {
			primary.Err = rerr.Err
			primary.Provider = rerr.Provider
		}
		primary.Attempts = 2
		primary.FallbackErr = fbErr
		return Outcome{}, primary
	}

	return Outcome{
		Response: fbResp,
		Model:    c.defaultModel,
		Provider: fbResp.Provider,
		Fallback: &FallbackOutcome{
			Occurred:        true,
			Reason:          failureReason(err),
			OriginalModelID: modelID,
			UsedModelID:     c.defaultModel,
			Notification:    FallbackNotification(modelID, c.defaultModel),
		},
	}, nil
}

// FallbackNotification is the user-facing notice of a fallback.
func FallbackNotification(originalModel, defaultModel string) string {
	return fmt.Sprintf("The selected model (%s) was unavailable. Analysis was performed using the default model (%s).",
		originalModel, defaultModel)
}

func failureReason(err error) string {
	var rerr *RouterError
	if errors.As(err, &rerr) && rerr.Err != nil {
		return rerr.Err.Error()
	}
	if err != nil {
		return err.Error()
	}
	return "model unavailable"
}
