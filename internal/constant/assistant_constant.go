package constant

const (
	SpeakerUser      = "User"
	SpeakerAssistant = "Assistant"

	// Cloud model identifiers exposed to clients
	ModelGPT    = "gpt"
	ModelClaude = "claude"

	LocationLocal = "local"
	LocationCloud = "cloud"

	StatusAvailable    = "available"
	StatusUnavailable  = "unavailable"
	StatusUnconfigured = "unconfigured"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderNone   = "none"
)

// CampusSystemPrompt is prepended to every primary provider call.
const CampusSystemPrompt = `你是一個校務系統智能助手。你的職責是幫助成功大學的師生解決校務系統相關的問題。

你的回應應該：
1. 簡潔明了，直接回答問題
2. 基於提供的截圖和文本內容
3. 包含具體的步驟指引（如果適用）
4. 用繁體中文回應
5. 如果無法從截圖中獲取足夠信息，請說明

校務系統常見功能：
- 選課系統
- 成績查詢
- 課程表查詢
- 教室預約
- 繳費系統
- 學位查詢`

// CloudSystemPrompt is the shorter instruction used by the cloud providers.
const CloudSystemPrompt = `你是一個校務系統智能助手。幫助成功大學的師生解決校務系統相關問題。
回應應簡潔、實用，包含具體步驟（如需要）。使用繁體中文回應。`

const (
	QuestionLabel      = "用戶問題: "
	CloudQuestionLabel = "根據這個校務系統截圖，請回答："
)

// Prompt section headers
const (
	HistoryHeader   = "【對話紀錄】"
	ReferenceHeader = "【參考資料】"
	QuestionHeader  = "【用戶問題】"
)

const ContextIntro = "請根據以下參考資料和截圖回答問題："

const ContextGuidelines = `回答指引：
- 若問題在參考資料中有明確說明，請使用參考資料的答案回答
- 若問題是關於使用介面（可從截圖直接看出），請直接說明介面內容
- 若參考資料和截圖都無法回答問題，請直接說「我不知道」或「參考資料中沒有相關說明」
- 請用繁體中文回答，語氣親切專業`

const NoContextIntro = "請根據截圖回答以下問題："

const NoContextGuidelines = `回答指引：
- 若問題是關於使用介面（可從畫面直接看出），請直接說明
- 若缺乏實際資料來源，請直接說「我不知道」或「無法從截圖中確定」
- 請用繁體中文回答`

// Answer texts returned in place of provider failures.
const (
	MsgNoModelAvailable   = "無可用的模型，請檢查配置"
	MsgOllamaUnavailable  = "Ollama 未配置或無法連接"
	MsgOllamaTimeout      = "Ollama 處理超時，請嘗試更簡單的圖片或問題"
	MsgOllamaConnectFmt   = "無法連接到 Ollama 服務 (%s)\n\n💡 提示: 確保 Ollama 正在運行:\n  ollama serve"
	MsgOllamaStatusFmt    = "Ollama 回應失敗 (%d): %s"
	MsgOllamaErrorFmt     = "Ollama 查詢出錯: %s"
	MsgEmptyAnswer        = "無法生成回應，請重試"
	MsgOpenAIKeyMissing   = "OpenAI API 密鑰未配置"
	MsgClaudeKeyMissing   = "Claude API 密鑰未配置"
	MsgCloudTimeoutFmt    = "%s 處理超時，請稍後再試"
	MsgCloudErrorFmt      = "%s 查詢出錯: %s"
	ErrorBodySnippetLimit = 200
)
