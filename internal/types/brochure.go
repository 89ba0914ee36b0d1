// Package types provides type definitions for structured data used throughout the brochure generator.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Model identifies the LLM backend a brochure is generated with.
type Model string

const (
	// ModelOpenAI is provider A, the OpenAI chat completions backend
	ModelOpenAI Model = "openai"
	// ModelGemini is provider B, the Google Gemini backend
	ModelGemini Model = "gemini"
)

// Models lists the selectable models in display order.
func Models() []Model {
	return []Model{ModelOpenAI, ModelGemini}
}

// DisplayName returns the label shown in model dropdowns.
func (m Model) DisplayName() string {
	switch m {
	case ModelOpenAI:
		return "OpenAI"
	case ModelGemini:
		return "Gemini"
	default:
		return string(m)
	}
}

// ParseModel accepts a model key or display name, case-insensitively.
func ParseModel(s string) (Model, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Models() {
		if s == string(m) || s == strings.ToLower(m.DisplayName()) {
			return m, nil
		}
	}
	switch s {
	case "a", "provider_a", "gpt", "gpt-5-nano":
		return ModelOpenAI, nil
	case "b", "provider_b", "gemini-2.5-flash":
		return ModelGemini, nil
	}
	return "", fmt.Errorf("unknown model %q", s)
}

// Tone is the writing style requested for the brochure.
type Tone string

// Supported tones
const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneHumorous     Tone = "humorous"
	ToneTechnical    Tone = "technical"
	ToneExecutive    Tone = "executive"
)

// ToneOption describes a tone for UI dropdowns.
type ToneOption struct {
	Key         Tone   `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToneOptions returns the supported tones in display order.
func ToneOptions() []ToneOption {
	return []ToneOption{
		{ToneProfessional, "Professional", "Formal and authoritative language suitable for investors and stakeholders"},
		{ToneFriendly, "Friendly", "Warm and approachable tone for general audience"},
		{ToneHumorous, "Humorous", "Witty and entertaining while maintaining professionalism"},
		{ToneTechnical, "Technical", "Detailed and precise for technical stakeholders"},
		{ToneExecutive, "Executive", "Concise and high-level for C-suite readers"},
	}
}

// ParseTone accepts a tone key or display name, case-insensitively.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, opt := range ToneOptions() {
		if s == string(opt.Key) || s == strings.ToLower(opt.Name) {
			return opt.Key, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Request limits
const (
	DefaultTemperature     = 0.7
	DefaultMaxContentChars = 5000
	MinMaxContentChars     = 1000
	MaxMaxContentChars     = 10000
)

// GenerationRequest is the input of a brochure generation session.
// It is treated as immutable once a session has been created from it.
type GenerationRequest struct {
	CompanyName        string  `json:"company_name" validate:"required,min=2,max=100"`
	BaseURL            string  `json:"base_url" validate:"required,url"`
	Model              Model   `json:"model" validate:"required,oneof=openai gemini"`
	Tone               Tone    `json:"tone" validate:"required,oneof=professional friendly humorous technical executive"`
	CustomInstructions string  `json:"custom_instructions,omitempty" validate:"max=2000"`
	Temperature        float64 `json:"temperature" validate:"gte=0,lte=1"`
	MaxContentChars    int     `json:"max_content_chars" validate:"gte=1000,lte=10000"`
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize trims inputs, fills defaults, canonicalizes the base URL and
// sanitizes custom instructions. It does not validate ranges; call Validate.
func (r *GenerationRequest) Normalize() error {
	r.CompanyName = strings.TrimSpace(r.CompanyName)

	if r.Tone == "" {
		r.Tone = ToneProfessional
	} else if tone, err := ParseTone(string(r.Tone)); err == nil {
		r.Tone = tone
	}
	if r.Model != "" {
		if model, err := ParseModel(string(r.Model)); err == nil {
			r.Model = model
		}
	}
	if r.MaxContentChars == 0 {
		r.MaxContentChars = DefaultMaxContentChars
	}

	r.CustomInstructions = SanitizeText(r.CustomInstructions)

	if strings.TrimSpace(r.BaseURL) == "" {
		return nil
	}
	baseURL, err := NormalizeBaseURL(r.BaseURL)
	if err != nil {
		return err
	}
	r.BaseURL = baseURL
	return nil
}

// Validate validates the GenerationRequest using the validator.
func (r *GenerationRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// NormalizeBaseURL adds a missing https scheme and checks that the URL has
// an http(s) scheme and a dotted host.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https protocol")
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid URL format")
	}
	if !strings.Contains(parsed.Hostname(), ".") && parsed.Hostname() != "localhost" && parsed.Port() == "" {
		return "", fmt.Errorf("invalid domain name: %s", parsed.Host)
	}
	return parsed.String(), nil
}

// SanitizeText strips HTML tags and collapses whitespace.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// BrochureArtifact is the terminal output of a session, handed to the
// export collaborator. Partial is set when generation failed mid-stream.
type BrochureArtifact struct {
	SessionID   uuid.UUID         `json:"session_id"`
	Text        string            `json:"text"`
	GeneratedAt time.Time         `json:"generated_at"`
	Request     GenerationRequest `json:"request"`
	Partial     bool              `json:"partial,omitempty"`
}
