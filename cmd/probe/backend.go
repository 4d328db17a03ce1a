package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"campus-assistant-be/internal/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Check backend health and the primary model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkBackend(cmd.Context())
	},
}

var (
	askImage   string
	askModel   string
	askSession string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Send one question with a screenshot to the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askImage, "image", "", "screenshot file (required)")
	askCmd.Flags().StringVar(&askModel, "model", "", "model name, empty for the backend default")
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an existing session")
	_ = askCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(backendCmd, askCmd)
}

func sendRequest(ctx context.Context, method, path string, body interface{}, timeout time.Duration) (*http.Response, *envelope, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, backendURL+path, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp, nil, fmt.Errorf("unexpected response body: %s", raw)
	}
	return resp, &env, nil
}

func checkBackend(ctx context.Context) error {
	color.Cyan("\n🔗 檢查後端集成...")

	resp, _, err := sendRequest(ctx, http.MethodGet, "/health", nil, 5*time.Second)
	if err != nil {
		color.Yellow("⚠️ 無法連接到後端 (%s)", backendURL)
		fmt.Println("💡 提示: 請先運行 `go run ./cmd/rest`")
		return err
	}
	if resp.StatusCode != http.StatusOK {
		color.Yellow("⚠️ 後端服務未啟動或返回錯誤")
		return fmt.Errorf("health returned %s", resp.Status)
	}
	color.Green("✅ 後端服務運行正常")

	_, env, err := sendRequest(ctx, http.MethodGet, "/api/models", nil, 5*time.Second)
	if err != nil {
		color.Red("❌ 無法獲取模型列表")
		return err
	}
	var models dto.ListModelsResponse
	if err := json.Unmarshal(env.Data, &models); err != nil {
		return err
	}

	info, ok := models.Models[cfg.Ai.OllamaModel]
	if ok && info.Status == "available" {
		color.Green("✅ Ollama 已在後端配置並可用 (預設模型: %s)", models.DefaultModel)
		return nil
	}
	color.Yellow("⚠️ Ollama 狀態: %s", info.Status)
	return fmt.Errorf("primary model %s is %q", cfg.Ai.OllamaModel, info.Status)
}

func runAsk(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(askImage)
	if err != nil {
		return fmt.Errorf("read screenshot: %w", err)
	}

	req := dto.AskRequest{
		Question:   args[0],
		Screenshot: base64.StdEncoding.EncodeToString(image),
		Model:      askModel,
		SessionId:  askSession,
	}

	resp, env, err := sendRequest(cmd.Context(), http.MethodPost, "/api/ask", req, cfg.Ai.ProviderTimeout+10*time.Second)
	if err != nil {
		color.Red("❌ %v", err)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		color.Red("❌ %s: %s", resp.Status, env.Message)
		return fmt.Errorf("ask failed: %s", env.Message)
	}

	var answer dto.AskResponse
	if err := json.Unmarshal(env.Data, &answer); err != nil {
		return err
	}
	color.Green("✅ %s / %s", answer.Model, answer.SessionId)
	fmt.Println(answer.Response)
	return nil
}
