package factory

import (
	"campus-assistant-be/internal/config"
	"campus-assistant-be/pkg/llm"
	"campus-assistant-be/pkg/llm/claude"
	"campus-assistant-be/pkg/llm/ollama"
	"campus-assistant-be/pkg/llm/openai"
	"fmt"
)

// Providers is the full set of backends the dispatcher routes between.
type Providers struct {
	Primary *ollama.OllamaProvider
	OpenAI  llm.VisionProvider
	Claude  llm.VisionProvider
}

func NewProviders(ai config.AIConfig, keys config.APIKeys) Providers {
	return Providers{
		Primary: ollama.NewOllamaProvider(ai.OllamaBaseURL, ai.OllamaModel, ai.ProviderTimeout),
		OpenAI:  openai.NewOpenAIProvider(keys.OpenAI, ai.OpenAIBaseURL, ai.OpenAIModel, ai.ProviderTimeout),
		Claude:  claude.NewClaudeProvider(keys.Claude, ai.ClaudeBaseURL, ai.ClaudeModel, ai.ProviderTimeout),
	}
}

// NewVisionProvider builds a single provider by name; used by the probe CLI.
func NewVisionProvider(providerType string, ai config.AIConfig, keys config.APIKeys) (llm.VisionProvider, error) {
	switch providerType {
	case "ollama":
		baseURL := ai.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, ai.OllamaModel, ai.ProviderTimeout), nil
	case "openai", "gpt":
		return openai.NewOpenAIProvider(keys.OpenAI, ai.OpenAIBaseURL, ai.OpenAIModel, ai.ProviderTimeout), nil
	case "claude":
		return claude.NewClaudeProvider(keys.Claude, ai.ClaudeBaseURL, ai.ClaudeModel, ai.ProviderTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
