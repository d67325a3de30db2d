package squid

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

type aiMode int

const (
	modeAgent aiMode = iota
	modeQuery
	modeAPI
	modeCustom
)

func (m aiMode) String() string {
	switch m {
	case modeQuery:
		return "ai_query"
	case modeAPI:
		return "ai_api"
	case modeCustom:
		return "ai_custom"
	}
	return "ai_agent"
}

// CustomAPIOptions point an AIChat at an HTTP endpoint that accepts
// POST {"prompt": ..., "jobId": ...} and answers {"response": ...} or
// {"error": ...}. An empty body means the answer is the result of the job.
type CustomAPIOptions struct {
	URL     string
	Headers map[string]string
	// AgentID, when set, subscribes to the status updates of that agent.
	AgentID string
}

// AIChatState is the snapshot an AIChat reports.
type AIChatState struct {
	History []ChatMessage
	// StatusUpdates holds the progress of every job started by the chat,
	// keyed by job id.
	StatusUpdates map[string][]client.StatusUpdate

	// Data is the answer to the latest request, growing while it streams.
	Data     string
	Loading  bool
	Err      error
	Complete bool
}

type aiRequest struct {
	prompt  string
	file    *client.File
	jobID   string
	options client.ChatOptions
	voice   bool
	seq     int
}

// AIChat is a conversation with an AI agent, an AI query over a database
// integration, an AI driven API integration, or a custom HTTP endpoint.
type AIChat struct {
	cfg           config
	c             client.Client
	mode          aiMode
	agentID       string
	integrationID string
	endpoints     []string
	explain       bool
	custom        CustomAPIOptions

	notify    *notifier[AIChatState]
	stream    *Binding[string]
	memory    *PromiseBinding[[]client.HistoryItem]
	statusSub rx.Subscription

	mu       sync.Mutex
	history  []ChatMessage
	status   map[string][]client.StatusUpdate
	prompt   string
	file     *client.File
	voice    bool
	jobID    string
	options  client.ChatOptions
	requests int
	last     State[string]
	closed   bool
}

// NewAIAgent starts a conversation with an agent of the client attached to
// ctx.
func NewAIAgent(ctx context.Context, agentID string, onChange func(AIChatState), opts ...Option) (*AIChat, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id must be set for chat", constants.ErrPrecondition)
	}
	return newAIChat(ctx, &AIChat{mode: modeAgent, agentID: agentID}, onChange, opts)
}

// NewAIQuery asks questions about the data of a database integration. The
// client must be configured with an API key.
func NewAIQuery(ctx context.Context, integrationID string, onChange func(AIChatState), opts ...Option) (*AIChat, error) {
	if integrationID == "" {
		return nil, fmt.Errorf("%w: database integration id must be set", constants.ErrPrecondition)
	}
	return newAIChat(ctx, &AIChat{mode: modeQuery, integrationID: integrationID}, onChange, opts)
}

// NewAIOnAPI lets the AI call an API integration. A nil allowedEndpoints
// allows every endpoint. The client must be configured with an API key.
func NewAIOnAPI(ctx context.Context, integrationID string, allowedEndpoints []string, provideExplanation bool, onChange func(AIChatState), opts ...Option) (*AIChat, error) {
	if integrationID == "" {
		return nil, fmt.Errorf("%w: api integration id must be set", constants.ErrPrecondition)
	}
	return newAIChat(ctx, &AIChat{
		mode:          modeAPI,
		integrationID: integrationID,
		endpoints:     allowedEndpoints,
		explain:       provideExplanation,
	}, onChange, opts)
}

// NewAskWithAPI sends prompts to a custom HTTP endpoint.
func NewAskWithAPI(ctx context.Context, custom CustomAPIOptions, onChange func(AIChatState), opts ...Option) (*AIChat, error) {
	if custom.URL == "" {
		return nil, fmt.Errorf("%w: custom api url must be set", constants.ErrPrecondition)
	}
	return newAIChat(ctx, &AIChat{mode: modeCustom, agentID: custom.AgentID, custom: custom}, onChange, opts)
}

func newAIChat(ctx context.Context, a *AIChat, onChange func(AIChatState), opts []Option) (*AIChat, error) {
	c, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if (a.mode == modeQuery || a.mode == modeAPI) && c.Options().APIKey == "" {
		return nil, fmt.Errorf("%w: api key must be set for AI queries", constants.ErrPrecondition)
	}

	a.cfg = newConfig(a.mode.String(), opts)
	a.c = c
	a.notify = newNotifier(onChange)
	a.options = a.cfg.chatOptions
	a.status = map[string][]client.StatusUpdate{}
	a.stream = NewBinding(a.onStream, WithName(a.cfg.name), WithLogger(a.cfg.log))
	a.memory = NewPromiseBinding(a.onHistory,
		WithName(a.cfg.name+"_history"), WithLogger(a.cfg.log), WithContext(a.cfg.ctx))

	if a.agentID != "" {
		a.statusSub = a.agent().ObserveStatusUpdates().Subscribe(rx.Observer[client.StatusUpdate]{
			Next: a.onStatus,
		})
	}
	a.loadMemory()
	a.run(aiRequest{})
	return a, nil
}

func (a *AIChat) agent() client.Agent {
	return a.c.AI().Agent(a.agentID, a.cfg.agentOptions)
}

// Chat sends prompt. opts are merged over the chat's default options. An
// empty jobID is replaced by a generated one.
func (a *AIChat) Chat(prompt string, opts *client.ChatOptions, jobID string) {
	a.send(prompt, nil, opts, jobID, false)
}

// TranscribeAndChat transcribes file and sends the transcription as the
// prompt. The user message appears in the history once the transcription
// is known.
func (a *AIChat) TranscribeAndChat(file client.File, opts *client.ChatOptions, jobID string) {
	a.send("", &file, opts, jobID, false)
}

// ChatWithVoiceResponse sends prompt like Chat, but the answer arrives in
// one piece with a spoken rendition kept as the VoiceFile of the answer
// message. Smooth typing does not apply. Only agent chats answer by voice.
func (a *AIChat) ChatWithVoiceResponse(prompt string, opts *client.ChatOptions, jobID string) {
	a.send(prompt, nil, opts, jobID, true)
}

// TranscribeAndChatWithVoiceResponse is TranscribeAndChat answered like
// ChatWithVoiceResponse. The user message keeps file as its VoiceFile.
func (a *AIChat) TranscribeAndChatWithVoiceResponse(file client.File, opts *client.ChatOptions, jobID string) {
	a.send("", &file, opts, jobID, true)
}

func (a *AIChat) send(prompt string, file *client.File, opts *client.ChatOptions, jobID string, voice bool) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.startJobLocked(jobID)
	a.prompt = prompt
	a.file = file
	a.voice = voice
	a.options = a.mergeOptions(opts)
	if voice {
		a.options.SmoothTyping = false
	}
	if file == nil {
		a.history = append(slices.Clip(a.history), &UserMessage{ID: uuid.NewString(), Message: prompt, JobID: jobID})
	}
	req := a.nextRequestLocked()
	a.notify.push(a.snapshotLocked())
	a.mu.Unlock()
	a.notify.flush()

	a.loadMemory()
	a.run(req)
}

func (a *AIChat) mergeOptions(opts *client.ChatOptions) client.ChatOptions {
	if opts == nil {
		return a.cfg.chatOptions
	}
	return a.cfg.chatOptions.Merge(*opts)
}

func (a *AIChat) startJobLocked(jobID string) {
	a.jobID = jobID
	next := maps.Clone(a.status)
	next[jobID] = []client.StatusUpdate{}
	a.status = next
}

func (a *AIChat) nextRequestLocked() aiRequest {
	a.requests++
	return aiRequest{
		prompt:  a.prompt,
		file:    a.file,
		jobID:   a.jobID,
		options: a.options,
		voice:   a.voice,
		seq:     a.requests,
	}
}

func (a *AIChat) run(req aiRequest) {
	var fileName string
	if req.file != nil {
		fileName = req.file.Name
	}
	a.stream.Observe(func() rx.Observable[string] {
		return a.answer(req)
	}, ObserveOptions[string]{}, fileName, req.prompt, req.voice, req.seq)
}

// answer picks the path that serves req.
func (a *AIChat) answer(req aiRequest) rx.Observable[string] {
	switch a.mode {
	case modeCustom:
		if req.prompt == "" {
			return rx.Of("")
		}
		return rx.FromFuture(a.cfg.ctx, func(ctx context.Context) (string, error) {
			return a.askCustomAPI(ctx, req)
		})
	case modeAPI:
		if req.prompt == "" {
			return rx.Of("")
		}
		return rx.FromFuture(a.cfg.ctx, func(ctx context.Context) (string, error) {
			resp, err := a.c.AI().ExecuteAIAPICall(ctx, a.integrationID, req.prompt, a.endpoints, a.explain)
			if err != nil {
				return "", err
			}
			result := formatAPIAnswer(resp)
			a.upsertMessage(&AIMessage{ID: uuid.NewString(), Message: result, JobID: req.jobID}, false)
			return result, nil
		})
	case modeQuery:
		if req.prompt == "" {
			return rx.Of("")
		}
		return rx.FromFuture(a.cfg.ctx, func(ctx context.Context) (string, error) {
			resp, err := a.c.AI().ExecuteAIQuery(ctx, a.integrationID, req.prompt, a.cfg.queryOptions)
			if err != nil {
				return "", err
			}
			if !resp.Success {
				return "", fmt.Errorf("%w: %s", constants.ErrAIQuery, resp.Answer)
			}
			result := formatQueryAnswer(resp)
			a.upsertMessage(&AIMessage{ID: uuid.NewString(), Message: result, JobID: req.jobID}, false)
			return result, nil
		})
	}

	if req.voice {
		return a.answerByVoice(req)
	}
	if req.file != nil {
		userID, aiID := uuid.NewString(), uuid.NewString()
		file := *req.file
		return rx.SwitchFuture(a.cfg.ctx, func(ctx context.Context) (client.TranscribeAndChatResponse, error) {
			return a.agent().TranscribeAndChat(ctx, file, req.options, req.jobID)
		}, func(resp client.TranscribeAndChatResponse) rx.Observable[string] {
			a.upsertMessage(&UserMessage{ID: userID, Message: resp.TranscribedPrompt, JobID: req.jobID}, false)
			return rx.Tap(resp.ResponseStream, func(text string) {
				a.upsertMessage(&AIMessage{ID: aiID, Message: text, JobID: req.jobID}, true)
			})
		})
	}
	if req.prompt != "" {
		id := uuid.NewString()
		return rx.Tap(a.agent().Chat(req.prompt, req.options, req.jobID), func(text string) {
			a.upsertMessage(&AIMessage{ID: id, Message: text, JobID: req.jobID}, true)
		})
	}
	return rx.Of("")
}

func (a *AIChat) answerByVoice(req aiRequest) rx.Observable[string] {
	if req.file == nil && req.prompt == "" {
		return rx.Of("")
	}
	return rx.FromFuture(a.cfg.ctx, func(ctx context.Context) (string, error) {
		var resp client.VoiceResponse
		if req.file != nil {
			file := *req.file
			tr, err := a.agent().TranscribeAndChatWithVoiceResponse(ctx, file, req.options, req.jobID)
			if err != nil {
				return "", err
			}
			a.upsertMessage(&UserMessage{ID: uuid.NewString(), Message: tr.TranscribedPrompt, JobID: req.jobID, VoiceFile: &file}, false)
			resp = tr.VoiceResponse
		} else {
			var err error
			if resp, err = a.agent().ChatWithVoiceResponse(ctx, req.prompt, req.options, req.jobID); err != nil {
				return "", err
			}
		}
		voice := resp.VoiceFile
		a.upsertMessage(&AIMessage{ID: uuid.NewString(), Message: resp.Answer, JobID: req.jobID, VoiceFile: &voice}, false)
		return resp.Answer, nil
	})
}

// upsertMessage appends msg, or replaces the message with the same id when
// replace is set.
func (a *AIChat) upsertMessage(msg ChatMessage, replace bool) {
	a.mu.Lock()
	i := slices.IndexFunc(a.history, func(m ChatMessage) bool { return m.MessageID() == msg.MessageID() })
	switch {
	case i < 0:
		a.history = append(slices.Clip(a.history), msg)
	case replace:
		next := slices.Clone(a.history)
		next[i] = msg
		a.history = next
	default:
		a.mu.Unlock()
		return
	}
	a.notify.push(a.snapshotLocked())
	a.mu.Unlock()
	a.notify.flush()
}

func (a *AIChat) onStream(s State[string]) {
	a.mu.Lock()
	wasComplete := a.last.Complete
	a.last = s
	if s.Complete && !wasComplete {
		a.prompt = ""
		a.file = nil
		a.voice = false
		a.jobID = ""
	}
	a.notify.push(a.snapshotLocked())
	a.mu.Unlock()
	a.notify.flush()
}

// onStatus files u under its job. Updates of jobs this chat did not start
// are ignored. A result for a known parent message is merged into that
// message instead of being appended.
func (a *AIChat) onStatus(u client.StatusUpdate) {
	a.mu.Lock()
	bucket, ok := a.status[u.JobID]
	if !ok {
		a.mu.Unlock()
		return
	}

	next := maps.Clone(a.status)
	merged := false
	if result := u.Tags[client.StatusResultTag]; result != "" {
		if parent := u.Tags[client.StatusParentMessageIDTag]; parent != "" {
			if i := slices.IndexFunc(bucket, func(s client.StatusUpdate) bool { return s.MessageID == parent }); i >= 0 {
				updated := slices.Clone(bucket)
				tags := maps.Clone(updated[i].Tags)
				if tags == nil {
					tags = map[string]string{}
				}
				tags[client.StatusResultTag] = result
				updated[i].Tags = tags
				next[u.JobID] = updated
				merged = true
			}
		}
	}
	if !merged {
		next[u.JobID] = append(slices.Clip(bucket), u)
	}
	a.status = next
	a.notify.push(a.snapshotLocked())
	a.mu.Unlock()
	a.notify.flush()
}

func (a *AIChat) loadMemory() {
	a.mu.Lock()
	memoryID := a.options.MemoryID()
	a.mu.Unlock()
	if memoryID == "" || a.agentID == "" {
		return
	}
	a.memory.Await(func(ctx context.Context) ([]client.HistoryItem, error) {
		return a.agent().ChatHistory(ctx, memoryID)
	}, PromiseOptions[[]client.HistoryItem]{}, a.agentID, memoryID)
}

// onHistory replaces the history with the stored conversation.
func (a *AIChat) onHistory(s PromiseState[[]client.HistoryItem]) {
	if s.Loading {
		return
	}
	if s.Err != nil {
		a.cfg.log.Warn("loading chat history failed", "agent", a.agentID, "error", s.Err)
		return
	}
	history := make([]ChatMessage, 0, len(s.Data))
	for _, item := range s.Data {
		history = append(history, historyMessage(item))
	}

	a.mu.Lock()
	a.history = history
	a.notify.push(a.snapshotLocked())
	a.mu.Unlock()
	a.notify.flush()
}

func (a *AIChat) snapshotLocked() AIChatState {
	status := make(map[string][]client.StatusUpdate, len(a.status))
	for k, v := range a.status {
		status[k] = slices.Clone(v)
	}
	return AIChatState{
		History:       slices.Clone(a.history),
		StatusUpdates: status,
		Data:          a.last.Data,
		Loading:       a.last.Loading,
		Err:           a.last.Err,
		Complete:      a.last.Complete,
	}
}

// State returns the current state.
func (a *AIChat) State() AIChatState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Close stops following the answer stream and status updates. Requests
// already sent to the backend are not cancelled.
func (a *AIChat) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.stream.Close()
	a.memory.Close()
	if a.statusSub != nil {
		a.statusSub.Unsubscribe()
	}
}
