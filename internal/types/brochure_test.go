//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() GenerationRequest {
	return GenerationRequest{
		CompanyName:     "Acme",
		BaseURL:         "https://acme.test",
		Model:           ModelOpenAI,
		Tone:            ToneProfessional,
		Temperature:     0.7,
		MaxContentChars: 5000,
	}
}

func TestGenerationRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *GenerationRequest)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid request",
			mutate: func(r *GenerationRequest) {},
		},
		{
			name:    "company name too short",
			mutate:  func(r *GenerationRequest) { r.CompanyName = "A" },
			wantErr: true,
			errMsg:  "min",
		},
		{
			name:    "company name too long",
			mutate:  func(r *GenerationRequest) { r.CompanyName = strings.Repeat("a", 101) },
			wantErr: true,
			errMsg:  "max",
		},
		{
			name:    "missing base url",
			mutate:  func(r *GenerationRequest) { r.BaseURL = "" },
			wantErr: true,
			errMsg:  "required",
		},
		{
			name:    "unknown model",
			mutate:  func(r *GenerationRequest) { r.Model = "claude" },
			wantErr: true,
			errMsg:  "oneof",
		},
		{
			name:    "unknown tone",
			mutate:  func(r *GenerationRequest) { r.Tone = "sarcastic" },
			wantErr: true,
			errMsg:  "oneof",
		},
		{
			name:    "temperature above range",
			mutate:  func(r *GenerationRequest) { r.Temperature = 1.5 },
			wantErr: true,
			errMsg:  "lte",
		},
		{
			name:    "temperature below range",
			mutate:  func(r *GenerationRequest) { r.Temperature = -0.1 },
			wantErr: true,
			errMsg:  "gte",
		},
		{
			name:    "max content chars below range",
			mutate:  func(r *GenerationRequest) { r.MaxContentChars = 999 },
			wantErr: true,
			errMsg:  "gte",
		},
		{
			name:    "max content chars above range",
			mutate:  func(r *GenerationRequest) { r.MaxContentChars = 10001 },
			wantErr: true,
			errMsg:  "lte",
		},
		{
			name:    "instructions too long",
			mutate:  func(r *GenerationRequest) { r.CustomInstructions = strings.Repeat("x", 2001) },
			wantErr: true,
			errMsg:  "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerationRequest_Normalize(t *testing.T) {
	req := GenerationRequest{
		CompanyName:        "  Acme Corp ",
		BaseURL:            "acme.test",
		Model:              "OpenAI",
		Tone:               "Friendly",
		CustomInstructions: "<b>Focus</b>   on\n\nsustainability",
	}

	require.NoError(t, req.Normalize())
	assert.Equal(t, "Acme Corp", req.CompanyName)
	assert.Equal(t, "https://acme.test", req.BaseURL)
	assert.Equal(t, ModelOpenAI, req.Model)
	assert.Equal(t, ToneFriendly, req.Tone)
	assert.Equal(t, "Focus on sustainability", req.CustomInstructions)
	assert.Equal(t, DefaultMaxContentChars, req.MaxContentChars)
}

func TestGenerationRequest_NormalizeDefaultsTone(t *testing.T) {
	req := validRequest()
	req.Tone = ""
	require.NoError(t, req.Normalize())
	assert.Equal(t, ToneProfessional, req.Tone)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "https kept", input: "https://acme.test/about", want: "https://acme.test/about"},
		{name: "http kept", input: "http://acme.test", want: "http://acme.test"},
		{name: "scheme added", input: "www.acme.test", want: "https://www.acme.test"},
		{name: "surrounding space", input: "  acme.test  ", want: "https://acme.test"},
		{name: "localhost with port", input: "http://localhost:8080", want: "http://localhost:8080"},
		{name: "empty", input: "", wantErr: true},
		{name: "undotted host", input: "https://intranet", wantErr: true},
		{name: "ftp scheme", input: "ftp://acme.test", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTone(t *testing.T) {
	tone, err := ParseTone("EXECUTIVE")
	require.NoError(t, err)
	assert.Equal(t, ToneExecutive, tone)

	_, err = ParseTone("grumpy")
	assert.Error(t, err)
	assert.Len(t, ToneOptions(), 5)
}

func TestParseModel(t *testing.T) {
	tests := map[string]Model{
		"openai":           ModelOpenAI,
		"Gemini":           ModelGemini,
		"gpt-5-nano":       ModelOpenAI,
		"gemini-2.5-flash": ModelGemini,
	}
	for input, want := range tests {
		got, err := ParseModel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseModel("llama")
	assert.Error(t, err)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "", SanitizeText(""))
	assert.Equal(t, "hello world", SanitizeText("<p>hello</p>\n\t world"))
}

func TestCacheEntry_ValidAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry{FetchedAt: now, TTL: 5 * time.Minute}

	assert.True(t, entry.ValidAt(now))
	assert.True(t, entry.ValidAt(now.Add(299*time.Second)))
	assert.False(t, entry.ValidAt(now.Add(300*time.Second)))
}

func TestLinkSelection_URLs(t *testing.T) {
	var nilSel *LinkSelection
	assert.Nil(t, nilSel.URLs())

	sel := &LinkSelection{Selected: []SelectedLink{
		{LinkCandidate: LinkCandidate{URL: "https://acme.test/about"}, Category: "about page"},
		{LinkCandidate: LinkCandidate{URL: "https://acme.test/careers"}, Category: "careers page"},
	}}
	assert.Equal(t, []string{"https://acme.test/about", "https://acme.test/careers"}, sel.URLs())
}
