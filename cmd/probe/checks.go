package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"campus-assistant-be/pkg/llm"
	"campus-assistant-be/pkg/llm/factory"
	"campus-assistant-be/pkg/llm/ollama"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var knownVisionModels = []struct{ name, desc string }{
	{"llava", "標準版 (推薦)"},
	{"llava:34b", "高精度版"},
	{"bakllava", "輕量版"},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed on the primary server",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := checkService(cmd.Context())
		return err
	},
}

var visionCmd = &cobra.Command{
	Use:   "vision",
	Short: "Check that a vision model is installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkVision(cmd.Context())
	},
}

var (
	generateProvider string
	generateModel    string
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Send a short text prompt to a provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := "簡潔回答: 這是什麼？"
		if len(args) == 1 {
			prompt = args[0]
		}
		return checkGeneration(cmd.Context(), generateProvider, generateModel, prompt)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateProvider, "provider", "ollama", "ollama, openai or claude")
	generateCmd.Flags().StringVar(&generateModel, "model", "", "model override")

	rootCmd.AddCommand(modelsCmd, visionCmd, generateCmd)
}

func primary() *ollama.OllamaProvider {
	return ollama.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel, cfg.Ai.ProviderTimeout)
}

func checkService(ctx context.Context) ([]string, error) {
	color.Cyan("🔍 檢查 Ollama 服務...")

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names, err := primary().ListModels(probeCtx)
	if err != nil {
		color.Red("❌ 無法連接到 Ollama (%s): %v", cfg.Ai.OllamaBaseURL, err)
		fmt.Println("💡 提示: 請先運行 `ollama serve`")
		return nil, err
	}

	color.Green("✅ Ollama 服務運行正常: %s", cfg.Ai.OllamaBaseURL)
	if len(names) == 0 {
		color.Yellow("⚠️ 未找到已安裝的模型")
		return nil, errors.New("no models installed")
	}
	fmt.Println("📦 可用模型:")
	for _, name := range names {
		fmt.Printf("   - %s\n", name)
	}
	return names, nil
}

func checkVision(ctx context.Context) error {
	names, err := checkService(ctx)
	if err != nil {
		return err
	}

	color.Cyan("\n🔍 檢查視覺模型...")
	found := false
	for _, vm := range knownVisionModels {
		if slices.ContainsFunc(names, func(n string) bool { return strings.Contains(n, vm.name) }) {
			color.Green("✅ 已安裝: %s (%s)", vm.name, vm.desc)
			found = true
		}
	}
	if !found {
		color.Yellow("⚠️ 未找到視覺模型，請運行:")
		fmt.Println("   ollama pull llava")
		return errors.New("no vision model installed")
	}
	return nil
}

func checkGeneration(ctx context.Context, providerType, model, prompt string) error {
	color.Cyan("\n🧪 測試 API 調用 (%s)...", providerType)

	provider, err := factory.NewVisionProvider(providerType, cfg.Ai, cfg.Keys)
	if err != nil {
		return err
	}
	if !provider.Configured() {
		color.Yellow("⚠️ %s 未設定", provider.Name())
		return llm.ErrMissingCredential
	}

	var opts []llm.Option
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}

	start := time.Now()
	text, err := provider.Generate(ctx, llm.Request{Prompt: prompt}, opts...)
	switch {
	case llm.IsTimeout(err):
		color.Red("⏱️ 請求超時（可能模型太大或 GPU 不足）")
		return err
	case err != nil:
		color.Red("❌ API 返回錯誤: %v", err)
		return err
	}

	color.Green("✅ API 調用成功 (%s)", time.Since(start).Round(time.Millisecond))
	fmt.Println(text)
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	color.Cyan(strings.Repeat("=", 50))
	color.Cyan("  Ollama 集成驗證工具")
	color.Cyan(strings.Repeat("=", 50))

	results := []struct {
		name string
		err  error
	}{
		{"Ollama 服務", errOnly(checkService(ctx))},
		{"視覺模型", checkVision(ctx)},
		{"API 調用", checkGeneration(ctx, "ollama", "", "簡潔回答: 這是什麼？")},
		{"後端集成", checkBackend(ctx)},
	}

	fmt.Println()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			color.Red("%s: ❌ 失敗", r.name)
		} else {
			color.Green("%s: ✅ 通過", r.name)
		}
	}

	if failed > 0 {
		fmt.Println("\n常見問題:")
		fmt.Println("- Ollama 未運行: 執行 `ollama serve`")
		fmt.Println("- 缺少視覺模型: 執行 `ollama pull llava`")
		fmt.Println("- 後端未運行: 執行 `go run ./cmd/rest`")
		return fmt.Errorf("%d check(s) failed", failed)
	}
	color.Green("\n🎉 所有檢查通過！Ollama 已準備就緒")
	return nil
}

func errOnly(_ []string, err error) error { return err }
