package openwebui

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func TestPoolRoutesUsersToTheirOwnBackend(t *testing.T) {
	var defaultAuth, aliceAuth, bobAuth string
	deployment := chatServer(t, `{"document_type":"Receipt","confidence":0.7}`, "", func(p map[string]any) { defaultAuth = p["_auth"].(string) })
	defer deployment.Close()
	alice := chatServer(t, `{"document_type":"Invoice","confidence":0.9}`, "", func(p map[string]any) { aliceAuth = p["_auth"].(string) })
	defer alice.Close()
	bob := chatServer(t, `{"document_type":"Receipt","confidence":0.8}`, "", func(p map[string]any) { bobAuth = p["_auth"].(string) })
	defer bob.Close()

	pool := NewPool(Config{BaseURL: deployment.URL, Model: "llama3", APIKey: "deploy"}, nil, nil)
	classifier := NewClassifier(pool, nil)

	res, err := classifier.Classify(context.Background(), domain.ClassifyInput{
		Text: "invoice", Types: testTypes,
		LLM: domain.LLMSettings{BaseURL: alice.URL + "/", APIKey: "alice-key"},
	})
	if err != nil {
		t.Fatalf("Classify(alice) error = %v", err)
	}
	if res.DocumentType != "Invoice" || aliceAuth != "Bearer alice-key" {
		t.Fatalf("alice got %q via auth %q", res.DocumentType, aliceAuth)
	}

	res, err = classifier.Classify(context.Background(), domain.ClassifyInput{
		Text: "receipt", Types: testTypes,
		LLM: domain.LLMSettings{BaseURL: bob.URL, Model: "mistral"},
	})
	if err != nil {
		t.Fatalf("Classify(bob) error = %v", err)
	}
	if res.DocumentType != "Receipt" || res.Confidence != 0.8 {
		t.Fatalf("bob got %+v", res)
	}
	if bobAuth != "Bearer deploy" {
		t.Fatalf("bob should inherit the deployment key, got %q", bobAuth)
	}
	if defaultAuth != "" {
		t.Fatalf("deployment backend was called for users with their own endpoint")
	}

	if _, err := classifier.Classify(context.Background(), domain.ClassifyInput{Text: "x", Types: testTypes}); err != nil {
		t.Fatalf("Classify(default) error = %v", err)
	}
	if defaultAuth != "Bearer deploy" {
		t.Fatalf("user without overrides should hit the deployment backend, auth %q", defaultAuth)
	}
}

func TestPoolCachesClientsByConfig(t *testing.T) {
	pool := NewPool(Config{BaseURL: "http://llm:8080", Model: "llama3"}, nil, nil)

	a := pool.ClientFor(domain.LLMSettings{})
	if b := pool.ClientFor(domain.LLMSettings{Model: " "}); a != b {
		t.Fatalf("blank overrides should reuse the deployment client")
	}
	if c := pool.ClientFor(domain.LLMSettings{BaseURL: "http://llm:8080/"}); a != c {
		t.Fatalf("trailing slash should not create a new client")
	}
	x := pool.ClientFor(domain.LLMSettings{Model: "qwen"})
	if x == a {
		t.Fatalf("model override should get its own client")
	}
	if y := pool.ClientFor(domain.LLMSettings{Model: "qwen"}); y != x {
		t.Fatalf("same override should reuse the cached client")
	}
}

func TestPoolUnconfiguredUserGetsNotConfiguredError(t *testing.T) {
	pool := NewPool(Config{}, nil, nil)
	if pool.Configured() {
		t.Fatalf("empty deployment config reported as configured")
	}
	_, err := NewFieldExtractor(pool, nil).ExtractFields(context.Background(), domain.ExtractInput{Text: "x", Type: testTypes[0]})
	if !errors.Is(err, domain.ErrLLMNotConfigured) {
		t.Fatalf("ExtractFields() error = %v, want ErrLLMNotConfigured", err)
	}
}
