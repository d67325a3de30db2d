package client

import (
	"context"

	"github.com/squidcloud/squid-go/pkg/rx"
)

// Tags understood on agent status updates.
const (
	StatusResultTag          = "result"
	StatusParentMessageIDTag = "parentMessageId"
)

// AI is the entry point to agents and AI-assisted queries.
type AI interface {
	Agent(agentID string, opts AgentClientOptions) Agent
	ExecuteAIQuery(ctx context.Context, integrationID, prompt string, opts AIQueryOptions) (AIQueryResponse, error)
	ExecuteAIAPICall(ctx context.Context, integrationID, prompt string, allowedEndpoints []string, provideExplanation bool) (AIAPIResponse, error)
}

// Agent is a single AI agent.
type Agent interface {
	// Chat streams the answer to prompt. Every emission carries the full
	// answer received so far.
	Chat(prompt string, opts ChatOptions, jobID string) rx.Observable[string]
	TranscribeAndChat(ctx context.Context, file File, opts ChatOptions, jobID string) (TranscribeAndChatResponse, error)
	// ChatWithVoiceResponse answers prompt in one piece, together with a
	// spoken rendition of the answer.
	ChatWithVoiceResponse(ctx context.Context, prompt string, opts ChatOptions, jobID string) (VoiceResponse, error)
	TranscribeAndChatWithVoiceResponse(ctx context.Context, file File, opts ChatOptions, jobID string) (TranscribeAndVoiceResponse, error)
	ObserveStatusUpdates() rx.Observable[StatusUpdate]
	ChatHistory(ctx context.Context, memoryID string) ([]HistoryItem, error)
}

// AgentClientOptions configures how an agent handle talks to the backend.
type AgentClientOptions struct {
	APIKey string `cbor:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// MemoryOptions selects the stored conversation an agent continues.
type MemoryOptions struct {
	MemoryID string `cbor:"memoryId,omitempty" json:"memoryId,omitempty"`
}

// ChatOptions tune a single agent interaction.
type ChatOptions struct {
	Model        string         `cbor:"model,omitempty" json:"model,omitempty"`
	Instructions string         `cbor:"instructions,omitempty" json:"instructions,omitempty"`
	Temperature  *float32       `cbor:"temperature,omitempty" json:"temperature,omitempty"`
	SmoothTyping bool           `cbor:"smoothTyping,omitempty" json:"smoothTyping,omitempty"`
	Memory       *MemoryOptions `cbor:"memoryOptions,omitempty" json:"memoryOptions,omitempty"`
	// Voice tunes the speech of voice responses.
	Voice *VoiceOptions `cbor:"voiceOptions,omitempty" json:"voiceOptions,omitempty"`
}

// VoiceOptions select how an answer is spoken.
type VoiceOptions struct {
	Model string  `cbor:"modelName,omitempty" json:"modelName,omitempty"`
	Voice string  `cbor:"voice,omitempty" json:"voice,omitempty"`
	Speed float64 `cbor:"speed,omitempty" json:"speed,omitempty"`
}

// Merge overlays the set fields of o onto base.
func (base ChatOptions) Merge(o ChatOptions) ChatOptions {
	out := base
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.Instructions != "" {
		out.Instructions = o.Instructions
	}
	if o.Temperature != nil {
		out.Temperature = o.Temperature
	}
	if o.SmoothTyping {
		out.SmoothTyping = true
	}
	if o.Memory != nil {
		out.Memory = o.Memory
	}
	if o.Voice != nil {
		out.Voice = o.Voice
	}
	return out
}

// MemoryID returns the memory id, or "" when none is configured.
func (base ChatOptions) MemoryID() string {
	if base.Memory == nil {
		return ""
	}
	return base.Memory.MemoryID
}

// TranscribeAndChatResponse is the result of an audio prompt.
type TranscribeAndChatResponse struct {
	TranscribedPrompt string
	ResponseStream    rx.Observable[string]
}

// VoiceResponse is a complete answer and its spoken rendition.
type VoiceResponse struct {
	Answer    string
	VoiceFile File
}

// TranscribeAndVoiceResponse is the voice answer to an audio prompt.
type TranscribeAndVoiceResponse struct {
	TranscribedPrompt string
	VoiceResponse
}

// StatusUpdate reports progress of an agent job.
type StatusUpdate struct {
	AgentID   string            `json:"agentId"`
	JobID     string            `json:"jobId"`
	MessageID string            `json:"messageId"`
	Title     string            `json:"title"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// HistoryItem is one stored message of an agent memory.
type HistoryItem struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// AIQueryOptions tune an AI query against a database integration.
type AIQueryOptions struct {
	Instructions        string `json:"instructions,omitempty"`
	EnableRawResults    bool   `json:"enableRawResults,omitempty"`
	GenerateWalkthrough bool   `json:"generateWalkthrough,omitempty"`
}

// AIQueryResponse is the answer to an AI query.
type AIQueryResponse struct {
	Answer            string
	Explanation       string
	ExecutedQuery     string
	QueryMarkdownType string
	RawResultsURL     string
	Success           bool
}

// AIAPIResponse is the answer to an AI driven API call.
type AIAPIResponse struct {
	Answer      string
	Explanation string
}
