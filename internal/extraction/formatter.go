package extraction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/model"
	"github.com/clarity-dx/referral-portal/internal/resilience"
	"github.com/clarity-dx/referral-portal/pkg/anthropic"
)

const formatterSystemPrompt = `You are a medical intake specialist for a workers' compensation referral service.
You receive the OCR text of every document in one referral packet and return
a single JSON object with the extracted fields. Rules:
- Return ONLY the JSON object, no prose and no markdown fences.
- Use the literal string "not found" for any field absent from the documents.
- "procedures" is a JSON array with one object per requested procedure.
- All other fields are strings.`

// Formatter maps combined OCR text onto the referral field schema with one
// LLM call.
type Formatter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	fields    FieldSet
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	timeout   time.Duration
}

// NewFormatter builds a Formatter from config. The field definitions file
// is read once at construction.
func NewFormatter(client anthropic.Client, cfg config.AnthropicConfig, retry resilience.RetryConfig) (*Formatter, error) {
	fields, err := LoadFieldSet(cfg.FieldDefs)
	if err != nil {
		return nil, err
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Formatter{
		client:    client,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		fields:    fields,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		retry:     retry,
		timeout:   timeout,
	}, nil
}

// Format sends the combined document text to the model and parses the
// response into extracted data.
func (f *Formatter) Format(ctx context.Context, docText string) (*model.ExtractedData, error) {
	if strings.TrimSpace(docText) == "" {
		return nil, eris.New("extraction: no document text to format")
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extraction: formatter rate limit")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req := anthropic.MessageRequest{
		Model:     f.model,
		MaxTokens: f.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: formatterSystemPrompt + "\n\n" + f.schemaPrompt(), CacheControl: &anthropic.CacheControl{}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: docText},
		},
	}

	cfg := f.retry
	cfg.OnRetry = resilience.LogRetries("anthropic")
	resp, err := resilience.Retry(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return f.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extraction: format documents")
	}
	resp.Usage.LogCost(f.model, "format")

	return parseFormatterResponse(resp.Text())
}

func (f *Formatter) schemaPrompt() string {
	var sb strings.Builder
	sb.WriteString(f.fields.promptSection("Patient fields (under \"patient_info\")", f.fields.Patient))
	sb.WriteString(f.fields.promptSection("Procedure fields (objects in the \"procedures\" array)", f.fields.Procedure))
	sb.WriteString(f.fields.promptSection("Order fields (top level)", f.fields.Order))
	return sb.String()
}

// parseFormatterResponse decodes the model's JSON into extracted data,
// wrapping every leaf in a FieldValue so edit provenance can attach later.
func parseFormatterResponse(text string) (*model.ExtractedData, error) {
	text = stripFences(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "extraction: parse formatter response")
	}

	out := &model.ExtractedData{
		PatientInfo: map[string]model.FieldValue{},
		Fields:      map[string]model.FieldValue{},
	}

	for key, val := range raw {
		switch key {
		case "patient_info":
			m, ok := val.(map[string]any)
			if !ok {
				continue
			}
			for k, v := range m {
				out.PatientInfo[k] = model.FieldValue{Value: v}
			}
		case "procedures":
			list, ok := val.([]any)
			if !ok {
				continue
			}
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				proc := map[string]model.FieldValue{}
				for k, v := range m {
					proc[k] = model.FieldValue{Value: v}
				}
				out.Procedures = append(out.Procedures, proc)
			}
		default:
			out.Fields[key] = model.FieldValue{Value: val}
		}
	}

	return out, nil
}

// stripFences removes a markdown code fence if the model added one anyway.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
