package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// MaxFields caps how many field names are sent in the prompt.
	MaxFields int
}

// Describer asks Gemini for a one-paragraph description of a spec.
type Describer struct {
	client    *genai.Client
	model     string
	maxFields int
}

var _ core.Describer = (*Describer)(nil)

func New(ctx context.Context, cfg Config) (*Describer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	maxFields := cfg.MaxFields
	if maxFields <= 0 {
		maxFields = 60
	}
	return &Describer{client: client, model: model, maxFields: maxFields}, nil
}

type responseSchema struct {
	Description string `json:"description"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
	},
	Required: []string{"description"},
}

func (d *Describer) Describe(ctx context.Context, req core.DescriptionRequest) (string, error) {
	if strings.TrimSpace(req.SpecName) == "" {
		return "", errors.New("gemini: spec name is required")
	}

	resp, err := d.client.Models.GenerateContent(
		ctx,
		d.model,
		genai.Text(buildPrompt(req, d.maxFields)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return "", fmt.Errorf("gemini: parse structured json: %w", err)
	}
	desc := strings.Join(strings.Fields(parsed.Description), " ")
	if desc == "" {
		return "", errors.New("gemini: empty description")
	}
	return desc, nil
}

// buildPrompt only carries schema metadata: names and the source reference.
func buildPrompt(req core.DescriptionRequest, maxFields int) string {
	fields := req.Fields
	more := 0
	if len(fields) > maxFields {
		more = len(fields) - maxFields
		fields = fields[:maxFields]
	}
	list := strings.Join(fields, ", ")
	if more > 0 {
		list += fmt.Sprintf(" (and %d more)", more)
	}

	return strings.TrimSpace(`
You document data containers for an internal catalog. Given a container spec synthesized from a schema registry artifact, write a short description (one or two sentences) of what a record in the container represents.

Return ONLY a single JSON object with the key "description" (string).

Rules:
- Describe the business entity, not the storage technology.
- Do not invent fields that are not listed.

Spec name: ` + req.SpecName + `
Container: ` + req.ContainerName + `
Source artifact: ` + req.Source.String() + `
Fields: ` + list + `
`)
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
