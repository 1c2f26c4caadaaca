package visionrouter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Tier is a user's subscription level.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// IsPaid reports whether the tier is anything other than free.
func (t Tier) IsPaid() bool { return t != "" && t != TierFree }

// ModelTier tells whether a model is offered to free users.
type ModelTier string

const (
	ModelFree ModelTier = "free"
	ModelPaid ModelTier = "paid"
)

// Model is a catalog entry. Many models share one provider.
type Model struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Tier     ModelTier `json:"tier"`
	Provider string    `json:"provider"`
}

// Limit is a usage allowance. Unlimited means no cap.
type Limit int64

// Unlimited is the allowance of a provider that never denies.
const Unlimited Limit = -1

// IsUnlimited reports whether l has no cap.
func (l Limit) IsUnlimited() bool { return l < 0 }

// Allows reports whether one more unit fits after used units.
func (l Limit) Allows(used int64) bool {
	return l.IsUnlimited() || used < int64(l)
}

// Remaining returns the allowance left after used units, never negative.
func (l Limit) Remaining(used int64) Limit {
	if l.IsUnlimited() {
		return Unlimited
	}
	if rem := int64(l) - used; rem > 0 {
		return Limit(rem)
	}
	return 0
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnlimited() {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(int64(l), 10)), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return l.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("visionrouter: limit must be a number or \"unlimited\": %w", err)
	}
	return l.set(n)
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("visionrouter: line %d: limit must be a scalar", node.Line)
	}
	return l.parse(node.Value)
}

func (l *Limit) parse(s string) error {
	switch s {
	case "unlimited", "infinity", ".inf":
		*l = Unlimited
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("visionrouter: invalid limit %q", s)
	}
	return l.set(n)
}

// set stores a finite count. Unlimited is only spelled as a word.
func (l *Limit) set(n int64) error {
	if n < 0 {
		return fmt.Errorf("visionrouter: negative limit %d", n)
	}
	*l = Limit(n)
	return nil
}

// Limits is the daily and monthly allowance of a provider for one tier.
type Limits struct {
	Daily   Limit `yaml:"daily" json:"daily"`
	Monthly Limit `yaml:"monthly" json:"monthly"`
}

// IsUnlimited reports whether neither window is capped.
func (l Limits) IsUnlimited() bool {
	return l.Daily.IsUnlimited() && l.Monthly.IsUnlimited()
}

// Counts is the usage of one user on one provider in the current windows.
type Counts struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// Remaining is the allowance left in both windows.
type Remaining struct {
	Daily   Limit `json:"daily"`
	Monthly Limit `json:"monthly"`
}

// RemainingFor computes what is left of limits after counts.
func RemainingFor(limits Limits, counts Counts) Remaining {
	return Remaining{
		Daily:   limits.Daily.Remaining(counts.Daily),
		Monthly: limits.Monthly.Remaining(counts.Monthly),
	}
}

// AnalysisResult is the structured answer of a vision model.
type AnalysisResult struct {
	Subject      string   `json:"subject"`
	Medium       string   `json:"medium"`
	Lighting     string   `json:"lighting"`
	Composition  string   `json:"composition"`
	Style        string   `json:"style"`
	ColorPalette []string `json:"colorPalette"`
	Prompt       string   `json:"prompt"`
}

// BrandLogo is an uploaded logo and the colors extracted from it.
type BrandLogo struct {
	URL             string   `json:"url" validate:"required"`
	ExtractedColors []string `json:"extractedColors" validate:"required,dive,brandhex"`
}

// BrandFonts is the font pair of a brand profile.
type BrandFonts struct {
	Primary   string `json:"primary" validate:"required"`
	Secondary string `json:"secondary" validate:"required"`
}

// BrandProfile is a user's palette and font pair.
type BrandProfile struct {
	ID           string     `json:"id" validate:"required"`
	Name         string     `json:"name" validate:"required,max=100"`
	Logo         *BrandLogo `json:"logo,omitempty"`
	ColorPalette []string   `json:"colorPalette" validate:"required,min=2,max=6,dive,brandhex"`
	Fonts        BrandFonts `json:"fonts"`
	CreatedAt    string     `json:"createdAt" validate:"required"`
	UpdatedAt    string     `json:"updatedAt" validate:"required"`
}

// FallbackOutcome describes a retry onto the default model. It is only
// populated when the retry happened and succeeded.
type FallbackOutcome struct {
	Occurred        bool   `json:"fallbackOccurred"`
	Reason          string `json:"fallbackReason,omitempty"`
	OriginalModelID string `json:"originalModelId,omitempty"`
	UsedModelID     string `json:"usedModelId"`
	Notification    string `json:"notification,omitempty"`
}

// AnalyzeRequest is the input of Service.Analyze.
type AnalyzeRequest struct {
	// ImageData is a base64 data URL: data:image/<type>;base64,<payload>.
	ImageData string
	// ModelID defaults to the catalog's default model.
	ModelID string
	// UserID defaults to "anonymous".
	UserID string
	// Tier defaults to free.
	Tier         Tier
	BrandProfile *BrandProfile

	Temperature *float64
	MaxTokens   *int
}

// AnalyzedImage is a parsed analysis plus the optional brand-adjusted prompt.
type AnalyzedImage struct {
	AnalysisResult
	BrandAdjustedPrompt string `json:"brandAdjustedPrompt,omitempty"`
}

// AnalyzeResponse is the structured outcome of Service.Analyze. Failures
// are reported through Error and Kind, never as a Go error. FallbackUsed
// is set whenever the default model was tried, even when it failed too.
type AnalyzeResponse struct {
	Success        bool           `json:"success"`
	RequestID      string         `json:"requestId"`
	Result         *AnalyzedImage `json:"result,omitempty"`
	ModelUsed      string         `json:"modelUsed,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	FallbackUsed   bool           `json:"fallbackUsed"`
	FallbackReason string         `json:"fallbackReason,omitempty"`
	OriginalModel  string         `json:"originalModel,omitempty"`
	Notification   string         `json:"notification,omitempty"`
	Error          string         `json:"error,omitempty"`
	Kind           ErrorKind      `json:"kind,omitempty"`
	Denial         *Admission     `json:"denial,omitempty"`
}

// ProviderUsage is one row of a usage snapshot.
type ProviderUsage struct {
	Provider  string    `json:"provider"`
	Name      string    `json:"name"`
	Purpose   string    `json:"purpose,omitempty"`
	Models    []Model   `json:"models,omitempty"`
	Usage     Counts    `json:"usage"`
	Limits    Limits    `json:"limits"`
	Remaining Remaining `json:"remaining"`
	Health    string    `json:"health,omitempty"`
}

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }
