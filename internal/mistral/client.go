package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"codemcp/internal/model"
)

const (
	DefaultBaseURL     = "https://api.mistral.ai/v1"
	DefaultChatModel   = "codestral-latest"
	DefaultMambaModel  = "codestral-mamba-latest"
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = 100 * time.Millisecond

	pathModels          = "/models"
	pathChatCompletions = "/chat/completions"
	pathFIMCompletions  = "/fim/completions"
)

// Client talks to the Mistral completion API. Build it once with NewClient
// and share it; it is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// DefaultChatModel is used when ChatOptions.Model is empty.
	DefaultChatModel string
	// FIMModel is sent on every fill-in-the-middle call, whatever the
	// caller asked for.
	FIMModel string
	// MinInterval is the minimum spacing between the start of two outbound
	// calls.
	MinInterval time.Duration
	// OnResponse, when set, receives every raw response for diagnostics.
	OnResponse func(endpoint string, statusCode int, body []byte)

	apiKey string
	pacer  *pacer
}

// NewClient validates apiKey and returns a ready client. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL, apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, model.NewError(model.KindConfig, "MISTRAL_API_KEY is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:          baseURL,
		HTTPClient:       &http.Client{Timeout: DefaultTimeout},
		DefaultChatModel: DefaultChatModel,
		FIMModel:         DefaultChatModel,
		MinInterval:      DefaultMinInterval,
		apiKey:           apiKey,
		pacer:            newPacer(),
	}, nil
}

// ListModels returns the models visible to the credential.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelCard, error) {
	status, body, err := c.do(ctx, http.MethodGet, pathModels, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, ClassifyStatus(status, body)
	}
	var list model.ModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, model.WrapError(model.KindSchema, "invalid models response: "+err.Error(), err)
	}
	return list.Data, nil
}

// ValidateCredential probes GET /models. A 401 becomes MISTRAL_AUTH, every
// other failure MISTRAL_TRANSPORT.
func (c *Client) ValidateCredential(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	if err == nil {
		return nil
	}
	var message string
	var status int
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		if pe.Code == model.KindAuth {
			authErr := model.WrapError(model.KindAuth, "invalid credential", err)
			authErr.StatusCode = pe.StatusCode
			return authErr
		}
		message, status = pe.Message, pe.StatusCode
	} else {
		message = err.Error()
	}
	transportErr := model.WrapError(model.KindTransport, message, err)
	transportErr.StatusCode = status
	return transportErr
}

// ChatCompletion posts messages to /chat/completions and returns the
// validated response unchanged.
func (c *Client) ChatCompletion(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.CompletionResponse, error) {
	req := opts.ChatRequest(messages, c.chatModel())
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return c.complete(ctx, pathChatCompletions, req)
}

// FIMCompletion posts prompt (and the optional suffix) to /fim/completions.
// The FIM model is always used; opts.Model is ignored.
func (c *Client) FIMCompletion(ctx context.Context, prompt string, opts model.FIMOptions) (*model.CompletionResponse, error) {
	req := opts.FIMRequest(prompt, c.fimModel())
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return c.complete(ctx, pathFIMCompletions, req)
}

func (c *Client) complete(ctx context.Context, path string, payload interface{}) (*model.CompletionResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, ClassifyStatus(status, body)
	}
	return decodeCompletion(body)
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, model.WrapError(model.KindInvalidRequest, "failed to marshal request", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	endpoint := c.baseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, model.WrapError(model.KindTransport, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.pacer.wait(ctx, c.MinInterval); err != nil {
		return 0, nil, model.WrapError(model.KindTransport, "request canceled while pacing: "+err.Error(), err)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, model.WrapError(model.KindTransport, err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		pe := model.WrapError(model.KindTransport, "failed to read response: "+err.Error(), err)
		pe.StatusCode = resp.StatusCode
		return 0, nil, pe
	}
	if c.OnResponse != nil {
		c.OnResponse(path, resp.StatusCode, body)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) baseURL() string {
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		return DefaultBaseURL
	}
	return baseURL
}

func (c *Client) chatModel() string {
	if m := strings.TrimSpace(c.DefaultChatModel); m != "" {
		return m
	}
	return DefaultChatModel
}

func (c *Client) fimModel() string {
	if m := strings.TrimSpace(c.FIMModel); m != "" {
		return m
	}
	return DefaultChatModel
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
