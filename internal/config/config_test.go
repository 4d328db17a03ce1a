package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OLLAMA_URL", "http://ollama.internal:11434/")
	t.Setenv("MEMORY_TTL_SECONDS", "0")

	cfg := Load()

	assert.Equal(t, "http://ollama.internal:11434", cfg.Ai.OllamaBaseURL)
	assert.Equal(t, "llava", cfg.Ai.OllamaModel)
	assert.Equal(t, 120*time.Second, cfg.Ai.ProviderTimeout)
	assert.Equal(t, time.Duration(0), cfg.Memory.TTL)
	assert.Equal(t, 2, cfg.Knowledge.MaxChunks)
	assert.Contains(t, cfg.Ai.OllamaModels, "qwen2.5vl:7b")
}

func TestGetEnvAsList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "unset falls back", value: "", want: []string{"a"}},
		{name: "trims items", value: " llava , qwen2.5 ", want: []string{"llava", "qwen2.5"}},
		{name: "only separators falls back", value: ",,", want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIST", tt.value)
			assert.Equal(t, tt.want, getEnvAsList("TEST_LIST", []string{"a"}))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvAsBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "not-a-bool")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
}
