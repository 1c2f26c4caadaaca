package visionrouter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Palette size bounds of a brand profile.
const (
	MinPaletteColors = 2
	MaxPaletteColors = 6
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// IsHexColor reports whether s is a #RRGGBB color.
func IsHexColor(s string) bool { return hexColorRe.MatchString(s) }

// Augment merges a brand profile into the prompt of an analysis. It
// returns false when there is no profile. The result keeps the original
// prompt verbatim, lists every palette color with the first one marked as
// the primary brand color, and names both fonts.
func Augment(result AnalysisResult, profile *BrandProfile) (string, bool) {
	if profile == nil {
		return "", false
	}

	var b strings.Builder
	b.WriteString(result.Prompt)

	if len(profile.ColorPalette) > 0 {
		fmt.Fprintf(&b, "\n\nBrand Color Adjustments: Use the following brand color palette: %s. ",
			strings.Join(profile.ColorPalette, ", "))
		fmt.Fprintf(&b, "Primary brand color: %s.", profile.ColorPalette[0])
		if len(profile.ColorPalette) > 1 {
			fmt.Fprintf(&b, " Secondary colors: %s.", strings.Join(profile.ColorPalette[1:], ", "))
		}
	}

	if profile.Fonts.Primary != "" || profile.Fonts.Secondary != "" {
		b.WriteString("\n\nTypography Recommendations:")
		if profile.Fonts.Primary != "" {
			fmt.Fprintf(&b, " Use %s as the primary font for headlines and key text.", profile.Fonts.Primary)
		}
		if profile.Fonts.Secondary != "" {
			fmt.Fprintf(&b, " Use %s as the secondary font for body text and supporting elements.", profile.Fonts.Secondary)
		}
	}

	return b.String(), true
}

// ValidationError lists every problem found in a brand profile.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "visionrouter: invalid brand profile: " + strings.Join(e.Problems, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

var brandValidate = newBrandValidator()

func newBrandValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("brandhex", func(fl validator.FieldLevel) bool {
		return IsHexColor(fl.Field().String())
	})
	return v
}

// ValidateBrandProfile checks a profile: id, name (at most 100 chars),
// 2 to 6 #RRGGBB palette colors, both fonts, timestamps, and an optional
// logo with valid extracted colors.
func ValidateBrandProfile(p *BrandProfile) error {
	if p == nil {
		return &ValidationError{Problems: []string{"brand profile must be an object"}}
	}

	err := brandValidate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return &ValidationError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "BrandProfile.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at least %s colors", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at most %s colors", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "brandhex":
		return fmt.Sprintf("invalid hex color at %s: %v", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
