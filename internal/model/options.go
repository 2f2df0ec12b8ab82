package model

const (
	DefaultChatTemperature = 0.7
	DefaultFIMTemperature  = 0.0
	DefaultTopP            = 1.0
	DefaultMaxTokens       = 1000
)

// ChatOptions tunes a chat completion. Nil pointers and zero values fall back
// to the defaults above.
type ChatOptions struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
}

// FIMOptions tunes a fill-in-the-middle completion. Model is accepted for
// symmetry with ChatOptions but the client always sends its FIM model.
type FIMOptions struct {
	Model       string
	Suffix      string
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        []string
}

// Float returns a pointer to v, for the optional option fields.
func Float(v float64) *float64 { return &v }

// ChatRequest resolves the options against messages and the client's default
// model. The messages slice is copied so later edits by the caller do not
// leak into the request.
func (o ChatOptions) ChatRequest(messages []Message, defaultModel string) CompletionRequest {
	req := CompletionRequest{
		Model:       o.Model,
		Messages:    append([]Message(nil), messages...),
		Temperature: DefaultChatTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		req.TopP = *o.TopP
	}
	if o.MaxTokens != 0 {
		req.MaxTokens = o.MaxTokens
	}
	if len(o.Stop) > 0 {
		req.Stop = append([]string(nil), o.Stop...)
	}
	return req
}

// FIMRequest resolves the options for prompt. fimModel always wins over
// o.Model.
func (o FIMOptions) FIMRequest(prompt, fimModel string) FIMRequest {
	req := FIMRequest{
		Model:       fimModel,
		Prompt:      prompt,
		Suffix:      o.Suffix,
		Temperature: DefaultFIMTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		req.TopP = *o.TopP
	}
	if o.MaxTokens != 0 {
		req.MaxTokens = o.MaxTokens
	}
	if len(o.Stop) > 0 {
		req.Stop = append([]string(nil), o.Stop...)
	}
	return req
}
