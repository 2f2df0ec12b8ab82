package mistral

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"codemcp/internal/model"
)

func TestFIMCompletion_Integration_MistralAPI(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_INTEGRATION_TESTS=1 to run integration tests")
	}

	apiKey := strings.TrimSpace(os.Getenv("MISTRAL_API_KEY"))
	if apiKey == "" {
		t.Skip("MISTRAL_API_KEY is not set")
	}

	client, err := NewClient(os.Getenv("MISTRAL_BASE_URL"), apiKey)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := client.ValidateCredential(ctx); err != nil {
		t.Fatalf("ValidateCredential returned error: %v", err)
	}

	resp, err := client.FIMCompletion(ctx, "def fibonacci(n: int):", model.FIMOptions{
		Suffix:    "n = int(input('Enter a number: '))\nprint(fibonacci(n))",
		MaxTokens: 128,
	})
	if err != nil {
		t.Fatalf("FIMCompletion returned error: %v", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		t.Fatalf("expected a non-empty completion, got %+v", resp)
	}
}
