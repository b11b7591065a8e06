package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Gemini API endpoint format: https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent
	geminiAPIURLBase   = "https://generativelanguage.googleapis.com/v1beta/models/"
	defaultGeminiModel = "gemini-1.5-pro"
)

// GeminiProvider implements the Provider interface for Google's Gemini.
type GeminiProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

// GeminiConfig holds configuration for Gemini provider.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrProviderNotConfigured)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the model being used.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Validate checks if the configuration is valid.
func (p *GeminiProvider) Validate() error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: API key is required", ErrProviderNotConfigured)
	}
	return nil
}

// Generate sends a multimodal request to Gemini and returns the
// response text or tool calls.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	body := geminiRequest{
		Contents: buildContents(req.Messages),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     temperature,
		},
	}

	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, len(req.Tools))
		for i, tool := range req.Tools {
			decls[i] = geminiFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}
	} else if req.JSONMode {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s%s:generateContent?key=%s", geminiAPIURLBase, p.model, p.apiKey)

	// Execute with retries and exponential backoff
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ErrContextCanceled
			case <-time.After(time.Duration(attempt*attempt) * time.Second):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, lastErr = p.httpClient.Do(httpReq)
		if lastErr != nil {
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = ErrRateLimited
			continue
		}

		// Retry server errors
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		break
	}

	if lastErr != nil {
		return nil, lastErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("gemini API error: %s (code: %d)", errResp.Error.Message, errResp.Error.Code)
		}
		return nil, fmt.Errorf("gemini API error: status %d", resp.StatusCode)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrContentBlocked, geminiResp.PromptFeedback.BlockReason)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", ErrInvalidResponse)
	}

	candidate := geminiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, ErrContentBlocked
	}

	var contentBuilder strings.Builder
	var toolCalls []ToolCall
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				toolCalls = append(toolCalls, ToolCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
				continue
			}
			contentBuilder.WriteString(part.Text)
		}
	}

	var promptTokens, completionTokens int
	if geminiResp.UsageMetadata != nil {
		promptTokens = geminiResp.UsageMetadata.PromptTokenCount
		completionTokens = geminiResp.UsageMetadata.CandidatesTokenCount
	}

	return &Response{
		Content:          contentBuilder.String(),
		ToolCalls:        toolCalls,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            p.model,
		FinishReason:     candidate.FinishReason,
	}, nil
}

func buildContents(messages []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		gc := geminiContent{Role: geminiRole(msg.Role)}

		for _, part := range msg.Parts {
			if len(part.Data) > 0 {
				gc.Parts = append(gc.Parts, geminiPart{
					InlineData: &geminiInlineData{
						MimeType: part.MimeType,
						Data:     base64.StdEncoding.EncodeToString(part.Data),
					},
				})
				continue
			}
			gc.Parts = append(gc.Parts, geminiPart{Text: part.Text})
		}

		for _, result := range msg.ToolResults {
			gc.Parts = append(gc.Parts, geminiPart{
				FunctionResponse: &geminiFunctionResponse{
					Name:     result.Name,
					Response: result.Content,
				},
			})
		}

		contents = append(contents, gc)
	}
	return contents
}

func geminiRole(role Role) string {
	switch role {
	case RoleModel:
		return "model"
	case RoleTool:
		// Gemini expects function responses in a user turn
		return "user"
	default:
		return "user"
	}
}

// Gemini API request/response structures

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int     `json:"maxOutputTokens,omitzero"`
	Temperature      float64 `json:"temperature,omitzero"`
	TopP             float64 `json:"topP,omitzero"`
	TopK             int     `json:"topK,omitzero"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *geminiUsageMetadata  `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content       *geminiContent       `json:"content"`
	FinishReason  string               `json:"finishReason"`
	SafetyRatings []geminiSafetyRating `json:"safetyRatings,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason   string               `json:"blockReason,omitempty"`
	SafetyRatings []geminiSafetyRating `json:"safetyRatings,omitempty"`
}

type geminiSafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
