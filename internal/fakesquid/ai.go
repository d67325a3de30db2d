package fakesquid

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/rx"
)

// AI is a fake client.AI with scripted answers.
type AI struct {
	mu          sync.Mutex
	agents      map[string]*Agent
	queryResp   client.AIQueryResponse
	queryErr    error
	apiResp     client.AIAPIResponse
	apiErr      error
	queries     []string
	apiPrompts  []string
	apiExplains []bool
}

var _ client.AI = (*AI)(nil)

func newAI() *AI {
	return &AI{agents: map[string]*Agent{}}
}

func (a *AI) Agent(agentID string, _ client.AgentClientOptions) client.Agent {
	return a.FakeAgent(agentID)
}

// FakeAgent returns the agent with the given id, creating it on first use.
func (a *AI) FakeAgent(agentID string) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag, ok := a.agents[agentID]
	if !ok {
		ag = &Agent{
			id:      agentID,
			status:  rx.NewSubject[client.StatusUpdate](),
			history: map[string][]client.HistoryItem{},
		}
		a.agents[agentID] = ag
	}
	return ag
}

// SetQueryResponse scripts ExecuteAIQuery.
func (a *AI) SetQueryResponse(resp client.AIQueryResponse, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queryResp, a.queryErr = resp, err
}

// SetAPIResponse scripts ExecuteAIAPICall.
func (a *AI) SetAPIResponse(resp client.AIAPIResponse, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiResp, a.apiErr = resp, err
}

func (a *AI) ExecuteAIQuery(_ context.Context, _ string, prompt string, _ client.AIQueryOptions) (client.AIQueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, prompt)
	return a.queryResp, a.queryErr
}

func (a *AI) ExecuteAIAPICall(_ context.Context, _ string, prompt string, _ []string, provideExplanation bool) (client.AIAPIResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiPrompts = append(a.apiPrompts, prompt)
	a.apiExplains = append(a.apiExplains, provideExplanation)
	return a.apiResp, a.apiErr
}

// Queries lists the prompts sent as AI queries.
func (a *AI) Queries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.queries...)
}

// APIPrompts lists the prompts sent as AI API calls.
func (a *AI) APIPrompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.apiPrompts...)
}

// ChatCall records one Chat invocation. Tests push answer text through
// Stream.
type ChatCall struct {
	Prompt  string
	Options client.ChatOptions
	JobID   string
	Stream  *rx.Subject[string]
	// Voice is set for the voice response variants, which do not stream.
	Voice bool
}

// Agent is a fake client.Agent.
type Agent struct {
	id     string
	status *rx.Subject[client.StatusUpdate]

	mu            sync.Mutex
	calls         []*ChatCall
	history       map[string][]client.HistoryItem
	historyErr    error
	transcription string
	autoReply     func(prompt string) []string
}

var _ client.Agent = (*Agent)(nil)

// SetAutoReply makes Chat answer synchronously with the chunks fn returns,
// each emission carrying the cumulative text.
func (a *Agent) SetAutoReply(fn func(prompt string) []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.autoReply = fn
}

// SetHistory stores the messages returned for memoryID.
func (a *Agent) SetHistory(memoryID string, items []client.HistoryItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[memoryID] = items
}

// FailHistory makes ChatHistory fail with err.
func (a *Agent) FailHistory(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyErr = err
}

// SetTranscription sets the text every audio file transcribes to.
func (a *Agent) SetTranscription(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcription = text
}

func (a *Agent) Chat(prompt string, opts client.ChatOptions, jobID string) rx.Observable[string] {
	a.mu.Lock()
	reply := a.autoReply
	call := &ChatCall{Prompt: prompt, Options: opts, JobID: jobID, Stream: rx.NewSubject[string]()}
	a.calls = append(a.calls, call)
	a.mu.Unlock()

	if reply != nil {
		var acc strings.Builder
		var out []string
		for _, chunk := range reply(prompt) {
			acc.WriteString(chunk)
			out = append(out, acc.String())
		}
		return rx.Of(out...)
	}
	return call.Stream
}

func (a *Agent) TranscribeAndChat(_ context.Context, file client.File, opts client.ChatOptions, jobID string) (client.TranscribeAndChatResponse, error) {
	if file.Reader == nil {
		return client.TranscribeAndChatResponse{}, fmt.Errorf("file %q has no content", file.Name)
	}
	a.mu.Lock()
	text := a.transcription
	a.mu.Unlock()
	return client.TranscribeAndChatResponse{
		TranscribedPrompt: text,
		ResponseStream:    a.Chat(text, opts, jobID),
	}, nil
}

// ChatWithVoiceResponse answers with the text the auto reply produces. The
// voice file holds that text prefixed by "voice:".
func (a *Agent) ChatWithVoiceResponse(_ context.Context, prompt string, opts client.ChatOptions, jobID string) (client.VoiceResponse, error) {
	a.mu.Lock()
	reply := a.autoReply
	a.calls = append(a.calls, &ChatCall{Prompt: prompt, Options: opts, JobID: jobID, Voice: true})
	a.mu.Unlock()

	if reply == nil {
		return client.VoiceResponse{}, fmt.Errorf("agent %s: no voice reply configured", a.id)
	}
	answer := strings.Join(reply(prompt), "")
	return client.VoiceResponse{
		Answer:    answer,
		VoiceFile: client.File{Name: "answer.mp3", Reader: strings.NewReader("voice:" + answer)},
	}, nil
}

func (a *Agent) TranscribeAndChatWithVoiceResponse(ctx context.Context, file client.File, opts client.ChatOptions, jobID string) (client.TranscribeAndVoiceResponse, error) {
	if file.Reader == nil {
		return client.TranscribeAndVoiceResponse{}, fmt.Errorf("file %q has no content", file.Name)
	}
	a.mu.Lock()
	text := a.transcription
	a.mu.Unlock()
	resp, err := a.ChatWithVoiceResponse(ctx, text, opts, jobID)
	if err != nil {
		return client.TranscribeAndVoiceResponse{}, err
	}
	return client.TranscribeAndVoiceResponse{TranscribedPrompt: text, VoiceResponse: resp}, nil
}

func (a *Agent) ObserveStatusUpdates() rx.Observable[client.StatusUpdate] {
	return a.status
}

// PushStatus publishes a status update.
func (a *Agent) PushStatus(u client.StatusUpdate) {
	if u.AgentID == "" {
		u.AgentID = a.id
	}
	a.status.Next(u)
}

// StatusObservers counts live status update subscriptions.
func (a *Agent) StatusObservers() int {
	return a.status.Observed()
}

func (a *Agent) ChatHistory(_ context.Context, memoryID string) ([]client.HistoryItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return append([]client.HistoryItem(nil), a.history[memoryID]...), nil
}

// Calls lists every Chat and voice invocation.
func (a *Agent) Calls() []*ChatCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*ChatCall(nil), a.calls...)
}

// LastCall returns the latest Chat or voice invocation, or nil.
func (a *Agent) LastCall() *ChatCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.calls) == 0 {
		return nil
	}
	return a.calls[len(a.calls)-1]
}
