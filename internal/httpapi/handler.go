// Package httpapi exposes the vision service over HTTP.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/brandstore"
)

// Images arrive inline as data URLs.
const maxBodyBytes = 20 << 20

// Handler serves the vision, usage and brand endpoints.
type Handler struct {
	svc      *vr.Service
	brands   brandstore.Store
	log      logrus.FieldLogger
	validate *validator.Validate
}

// NewHandler creates a Handler. A nil brands store is replaced by an
// in-memory one.
func NewHandler(svc *vr.Service, brands brandstore.Store, log logrus.FieldLogger) *Handler {
	if brands == nil {
		brands = brandstore.NewMemory()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, brands: brands, log: log, validate: v}
}

type visionRequest struct {
	ImageData    string           `json:"imageData"`
	ModelID      string           `json:"modelId"`
	UserID       string           `json:"userId"`
	UserTier     vr.Tier          `json:"userTier"`
	BrandProfile *vr.BrandProfile `json:"brandProfile" validate:"-"`
	Temperature  *float64         `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    *int             `json:"maxTokens" validate:"omitempty,gt=0,lte=32768"`
}

type quotaBody struct {
	Error        string    `json:"error"`
	RequestID    string    `json:"requestId"`
	Provider     string    `json:"provider,omitempty"`
	Usage        vr.Counts `json:"usage"`
	Limits       vr.Limits `json:"limits"`
	Alternatives []string  `json:"alternatives"`
}

// Vision handles POST /api/ai/vision.
func (h *Handler) Vision(w http.ResponseWriter, r *http.Request) {
	var req visionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp := h.svc.Analyze(r.Context(), vr.AnalyzeRequest{
		ImageData:    req.ImageData,
		ModelID:      req.ModelID,
		UserID:       req.UserID,
		Tier:         req.UserTier,
		BrandProfile: req.BrandProfile,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})

	if d := resp.Denial; d != nil && d.Kind == vr.KindQuotaExceeded {
		alts := d.Alternatives
		if alts == nil {
			alts = []string{}
		}
		writeJSON(w, http.StatusTooManyRequests, quotaBody{
			Error:        d.Reason,
			RequestID:    resp.RequestID,
			Provider:     d.Provider,
			Usage:        d.Usage,
			Limits:       d.Limits,
			Alternatives: alts,
		})
		return
	}

	status := statusFor(resp)
	if status >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": resp.RequestID,
			"kind":       resp.Kind,
			"model":      req.ModelID,
		}).Warn(resp.Error)
	}
	writeJSON(w, status, resp)
}

func statusFor(resp vr.AnalyzeResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Kind {
	case vr.KindInvalidInput, vr.KindConfiguration:
		return http.StatusBadRequest
	case vr.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case vr.KindProviderUnavailable:
		return http.StatusBadGateway
	case vr.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type admissionRequest struct {
	UserID   string  `json:"userId" validate:"required"`
	ModelID  string  `json:"modelId"`
	UserTier vr.Tier `json:"userTier"`
}

// Admission handles POST /api/ai/admission.
func (h *Handler) Admission(w http.ResponseWriter, r *http.Request) {
	var req admissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.ModelID == "" {
		req.ModelID = h.svc.DefaultModel()
	}

	adm, err := h.svc.CheckAdmission(r.Context(), req.UserID, req.ModelID, req.UserTier)
	if err != nil {
		h.log.WithError(err).WithField("user_id", req.UserID).Error("check admission")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, adm)
}

type statusBody struct {
	UserID     string             `json:"userId"`
	UserTier   vr.Tier            `json:"userTier"`
	Providers  []vr.ProviderUsage `json:"providers"`
	Generation []vr.ProviderUsage `json:"generation,omitempty"`
}

// Status handles GET /api/ai/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = vr.AnonymousUser
	}
	tier := vr.Tier(r.URL.Query().Get("userTier"))
	if tier == "" {
		tier = vr.TierFree
	}

	snap, err := h.svc.UsageSnapshot(r.Context(), userID, tier)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("usage snapshot")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	gen, err := h.svc.GenerationSnapshot(r.Context(), userID, tier)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("generation snapshot")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, statusBody{UserID: userID, UserTier: tier, Providers: snap, Generation: gen})
}

type generationRequest struct {
	UserID   string  `json:"userId" validate:"required"`
	Provider string  `json:"provider"`
	UserTier vr.Tier `json:"userTier"`
}

// decodeGeneration reads a generation request. It writes the error
// response itself and reports whether the request may proceed.
func (h *Handler) decodeGeneration(w http.ResponseWriter, r *http.Request) (generationRequest, bool) {
	var req generationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	if !h.svc.Generation().Enabled() {
		writeError(w, http.StatusNotFound, "generation quotas are not configured")
		return req, false
	}
	return req, true
}

// SelectGeneration handles POST /api/ai/generation/select. An over-quota
// preference is answered with the default provider, not a denial.
func (h *Handler) SelectGeneration(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGeneration(w, r)
	if !ok {
		return
	}
	sel, err := h.svc.Generation().Select(r.Context(), req.UserID, req.Provider, req.UserTier)
	if err != nil {
		h.log.WithError(err).WithField("user_id", req.UserID).Error("select generation provider")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// GenerationAdmission handles POST /api/ai/generation/admission. It checks
// one provider without downgrading, as research calls need.
func (h *Handler) GenerationAdmission(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGeneration(w, r)
	if !ok {
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	adm, err := h.svc.Generation().Check(r.Context(), req.UserID, req.Provider, req.UserTier)
	if err != nil {
		h.log.WithError(err).WithField("user_id", req.UserID).Error("check generation admission")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, adm)
}

type generationUsageBody struct {
	Provider string    `json:"provider"`
	Usage    vr.Counts `json:"usage"`
}

// RecordGeneration handles POST /api/ai/generation/usage. Callers post it
// after a generation call succeeded.
func (h *Handler) RecordGeneration(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGeneration(w, r)
	if !ok {
		return
	}
	if req.Provider == "" {
		req.Provider = h.svc.Generation().DefaultProvider()
	}
	counts, err := h.svc.Generation().Record(r.Context(), req.UserID, req.Provider)
	switch {
	case errors.Is(err, vr.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	case err != nil:
		h.log.WithError(err).WithField("user_id", req.UserID).Error("record generation usage")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, generationUsageBody{Provider: req.Provider, Usage: counts})
}

type modelsBody struct {
	DefaultModel string     `json:"defaultModel"`
	Models       []vr.Model `json:"models"`
}

// Models handles GET /api/ai/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsBody{DefaultModel: h.svc.DefaultModel(), Models: h.svc.Models()})
}

type upgradeBody struct {
	Error           string `json:"error"`
	UpgradeRequired bool   `json:"upgradeRequired"`
	Message         string `json:"message"`
}

func writeUpgradeRequired(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, upgradeBody{
		Error:           "Brand profile is a premium feature",
		UpgradeRequired: true,
		Message:         "Upgrade to a paid plan to access brand profile features.",
	})
}

type brandBody struct {
	Success bool             `json:"success"`
	Profile *vr.BrandProfile `json:"profile,omitempty"`
	Message string           `json:"message,omitempty"`
}

// brandQuery reads userId and userTier for GET and DELETE. It writes the
// error response itself and reports whether the request may proceed.
func brandQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	if !vr.Tier(r.URL.Query().Get("userTier")).IsPaid() {
		writeUpgradeRequired(w)
		return "", false
	}
	return userID, true
}

// LoadBrand handles GET /api/brand.
func (h *Handler) LoadBrand(w http.ResponseWriter, r *http.Request) {
	userID, ok := brandQuery(w, r)
	if !ok {
		return
	}
	p, err := h.brands.Load(r.Context(), userID)
	if err != nil {
		h.brandError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, brandBody{Success: true, Profile: p})
}

type saveBrandRequest struct {
	UserID   string           `json:"userId" validate:"required"`
	UserTier vr.Tier          `json:"userTier"`
	Profile  *vr.BrandProfile `json:"profile" validate:"-"`
}

// SaveBrand handles POST /api/brand.
func (h *Handler) SaveBrand(w http.ResponseWriter, r *http.Request) {
	var req saveBrandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Profile == nil {
		writeError(w, http.StatusBadRequest, "profile is required")
		return
	}
	if !req.UserTier.IsPaid() {
		writeUpgradeRequired(w)
		return
	}

	if err := h.brands.Save(r.Context(), req.UserID, req.Profile); err != nil {
		h.brandError(w, err, req.UserID)
		return
	}
	writeJSON(w, http.StatusOK, brandBody{Success: true, Message: "Brand profile saved successfully"})
}

// DeleteBrand handles DELETE /api/brand.
func (h *Handler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	userID, ok := brandQuery(w, r)
	if !ok {
		return
	}
	if err := h.brands.Delete(r.Context(), userID); err != nil {
		h.brandError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, brandBody{Success: true, Message: "Brand profile deleted successfully"})
}

func (h *Handler) brandError(w http.ResponseWriter, err error, userID string) {
	var verr *vr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, strings.Join(verr.Problems, ", "))
	case errors.Is(err, vr.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).WithField("user_id", userID).Error("brand store")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, ", ")
}
