package visionrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AnonymousUser is the user id of requests that carry none.
const AnonymousUser = "anonymous"

var dataURLRe = regexp.MustCompile(`(?s)^data:image/[A-Za-z0-9.+-]+;base64,.+$`)

// Service composes admission, routing, fallback, accounting and brand
// augmentation into the operations callers use.
type Service struct {
	catalog     *Catalog
	quotas      *QuotaTable
	generation  *GenerationQuotas
	ledger      UsageLedger
	admitter    *Admitter
	router      *Router
	coordinator *Coordinator
	log         logrus.FieldLogger
}

type serviceOptions struct {
	policy     Policy
	meter      Meter
	log        logrus.FieldLogger
	routerOpts []Option
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithPolicy orders the alternatives offered on a denial.
func WithPolicy(p Policy) ServiceOption {
	return func(o *serviceOptions) { o.policy = p }
}

// WithServiceMeter sets the meter shared by admission and routing.
func WithServiceMeter(m Meter) ServiceOption {
	return func(o *serviceOptions) { o.meter = m }
}

// WithLogger sets the logger for failures that do not surface in a
// response, such as a ledger write after a successful analysis.
func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(o *serviceOptions) { o.log = l }
}

// WithRouterOptions passes options to the underlying Router.
func WithRouterOptions(opts ...Option) ServiceOption {
	return func(o *serviceOptions) { o.routerOpts = append(o.routerOpts, opts...) }
}

// NewService validates cfg and wires the engine over ledger and the
// provider adapters.
func NewService(cfg Config, ledger UsageLedger, providers []Provider, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("visionrouter: usage ledger is required")
	}

	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = &noopMeter{}
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}

	catalog := NewCatalog(cfg)
	quotas := NewQuotaTable(cfg)

	routerOpts := append([]Option{WithMeter(o.meter)}, o.routerOpts...)
	router, err := NewRouter(catalog, providers, routerOpts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		catalog:     catalog,
		quotas:      quotas,
		ledger:      ledger,
		generation:  NewGenerationQuotas(cfg.Generation, ledger, o.meter),
		admitter:    NewAdmitter(catalog, quotas, ledger, o.policy, o.meter),
		router:      router,
		coordinator: NewCoordinator(router),
		log:         o.log,
	}, nil
}

// Catalog returns the model catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// DefaultModel returns the fallback floor model id.
func (s *Service) DefaultModel() string { return s.catalog.DefaultModel() }

// Models lists the catalog in declaration order.
func (s *Service) Models() []Model { return s.catalog.Models() }

// Analyze runs one image through admission, dispatch (with fallback),
// parsing, accounting and brand augmentation. It never returns an error:
// failures are described by the response.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) AnalyzeResponse {
	resp := AnalyzeResponse{RequestID: uuid.NewString()}

	if req.ModelID == "" {
		req.ModelID = s.catalog.DefaultModel()
	}
	if req.UserID == "" {
		req.UserID = AnonymousUser
	}
	if req.Tier == "" {
		req.Tier = TierFree
	}

	if err := validateImageData(req.ImageData); err != nil {
		return failed(resp, err)
	}

	adm, err := s.admitter.Check(ctx, req.UserID, req.ModelID, req.Tier)
	if err != nil {
		return failed(resp, err)
	}
	if !adm.Allowed {
		resp.Error = adm.Reason
		resp.Kind = adm.Kind
		resp.Denial = &adm
		return resp
	}

	out, err := s.coordinator.Analyze(ctx, req.ModelID, ProviderRequest{
		ImageData:   req.ImageData,
		Prompt:      AnalysisPrompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		resp = failed(resp, err)
		var rerr *RouterError
		if errors.As(err, &rerr) && rerr.FallbackErr != nil {
			resp.FallbackUsed = true
			resp.FallbackReason = failureReason(err)
			resp.OriginalModel = req.ModelID
		}
		return resp
	}

	result := ParseAnalysis(out.Response.Text)

	if _, _, err := s.RecordUsage(ctx, req.UserID, out.Model); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": resp.RequestID,
			"user_id":    req.UserID,
			"model":      out.Model,
		}).WithError(err).Error("record usage after successful analysis")
	}

	analyzed := &AnalyzedImage{AnalysisResult: result}
	if prompt, ok := Augment(result, req.BrandProfile); ok {
		analyzed.BrandAdjustedPrompt = prompt
	}

	resp.Success = true
	resp.Result = analyzed
	resp.ModelUsed = out.Model
	resp.Provider = out.Provider
	if fb := out.Fallback; fb != nil {
		resp.FallbackUsed = true
		resp.FallbackReason = fb.Reason
		resp.OriginalModel = fb.OriginalModelID
		resp.Notification = fb.Notification
	}
	return resp
}

// CheckAdmission runs admission without dispatching.
func (s *Service) CheckAdmission(ctx context.Context, userID, modelID string, tier Tier) (Admission, error) {
	if tier == "" {
		tier = TierFree
	}
	return s.admitter.Check(ctx, userID, modelID, tier)
}

// RecordUsage counts one successful call of modelID against its provider
// and returns the provider key with the post-increment counts. Unlimited
// providers are counted too; they are never denied.
func (s *Service) RecordUsage(ctx context.Context, userID, modelID string) (string, Counts, error) {
	provider, ok := s.catalog.ProviderOf(modelID)
	if !ok {
		return "", Counts{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	counts, err := s.ledger.Increment(ctx, userID, provider)
	if err != nil {
		return provider, Counts{}, fmt.Errorf("visionrouter: increment usage: %w", err)
	}
	return provider, counts, nil
}

// UsageSnapshot reports usage, limits and remaining allowance of every
// provider for userID on tier, in catalog order.
func (s *Service) UsageSnapshot(ctx context.Context, userID string, tier Tier) ([]ProviderUsage, error) {
	if tier == "" {
		tier = TierFree
	}

	keys := s.catalog.Providers()
	out := make([]ProviderUsage, 0, len(keys))
	for _, key := range keys {
		pc, _ := s.catalog.Provider(key)
		limits, _ := s.quotas.LimitsFor(key, tier)

		usage, err := s.ledger.CurrentUsage(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("visionrouter: read usage for %s: %w", key, err)
		}

		name := pc.Name
		if name == "" {
			name = key
		}
		out = append(out, ProviderUsage{
			Provider:  key,
			Name:      name,
			Purpose:   pc.Purpose,
			Models:    s.catalog.ModelsOf(key),
			Usage:     usage,
			Limits:    limits,
			Remaining: RemainingFor(limits, usage),
			Health:    s.router.Health().State(key).String(),
		})
	}
	return out, nil
}

// Generation returns the quotas of text generation and research calls.
// They share the vision ledger under a separate key space.
func (s *Service) Generation() *GenerationQuotas { return s.generation }

// GenerationSnapshot reports the generation quota table for userID on
// tier. It is empty when no generation providers are configured.
func (s *Service) GenerationSnapshot(ctx context.Context, userID string, tier Tier) ([]ProviderUsage, error) {
	return s.generation.Snapshot(ctx, userID, tier)
}

func validateImageData(data string) error {
	if data == "" {
		return fmt.Errorf("%w: image data is required", ErrInvalidInput)
	}
	if !dataURLRe.MatchString(data) {
		return fmt.Errorf("%w: invalid image format, expected base64 data URL", ErrInvalidInput)
	}
	return nil
}

func failed(resp AnalyzeResponse, err error) AnalyzeResponse {
	resp.Success = false
	resp.Error = err.Error()
	resp.Kind = KindOf(err)
	return resp
}
