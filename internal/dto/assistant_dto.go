package dto

import "time"

type AskRequest struct {
	Question   string `json:"question"`
	Screenshot string `json:"screenshot"` // base64, optionally a data URL
	Model      string `json:"model" validate:"omitempty,max=128"`
	SessionId  string `json:"session_id" validate:"omitempty,max=128"`
	Stateless  bool   `json:"stateless"` // skip server-side history entirely
	Timestamp  string `json:"timestamp,omitempty"`
}

type AskResponse struct {
	Response         string    `json:"response"`
	SessionId        string    `json:"session_id,omitempty"`
	Model            string    `json:"model"`
	ModelUsed        string    `json:"model_used"`
	Provider         string    `json:"provider"`
	Outcome          string    `json:"outcome"`
	ReferenceCount   int       `json:"reference_count"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

type ModelInfo struct {
	Name        string `json:"name"` // display label
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
	URL         string `json:"url,omitempty"`
	Vision      bool   `json:"vision"`
}

type ListModelsResponse struct {
	Models       map[string]ModelInfo `json:"models"`
	DefaultModel string               `json:"default_model"`
}

type SetDefaultModelRequest struct {
	Model string `json:"model" validate:"required,max=128"`
}

type SetDefaultModelResponse struct {
	DefaultModel  string `json:"default_model"`
	PreviousModel string `json:"previous_model"`
}

type ClearSessionRequest struct {
	SessionId string `json:"session_id" validate:"required,max=128"`
}

type ClearSessionResponse struct {
	SessionId string `json:"session_id"`
	Removed   bool   `json:"removed"`
}

// QuestionAnsweredMessage is published on the in-process bus after every
// answered question.
type QuestionAnsweredMessage struct {
	SessionId  string    `json:"session_id"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Outcome    string    `json:"outcome"`
	Retried    bool      `json:"retried"`
	Succeeded  bool      `json:"succeeded"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Chunks     int       `json:"chunks"`
	AnsweredAt time.Time `json:"answered_at"`
}

type ModelUsage struct {
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Requests     int        `json:"requests"`
	Failures     int        `json:"failures"`
	Fallbacks    int        `json:"fallbacks"`
	AvgLatencyMs int64      `json:"avg_latency_ms"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

type UsageResponse struct {
	TotalRequests int          `json:"total_requests"`
	TotalFailures int          `json:"total_failures"`
	Since         time.Time    `json:"since"`
	Models        []ModelUsage `json:"models"`
}

type HealthResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	PrimaryAvailable bool      `json:"primary_available"`
	DefaultModel     string    `json:"default_model"`
	Timestamp        time.Time `json:"timestamp"`
}
