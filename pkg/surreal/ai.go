package surreal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/surrealdb/surrealdb.go/contrib/surrealql"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/rx"
)

const defaultModel = openai.GPT4oMini

// AI runs agents against an OpenAI compatible endpoint. AI queries and AI
// API calls need integrations this client does not have.
type AI struct {
	c      *Client
	oa     *openai.Client
	model  string
	status *rx.Subject[client.StatusUpdate]
}

var _ client.AI = (*AI)(nil)

func newAI(c *Client, cfg *openai.ClientConfig) *AI {
	a := &AI{c: c, model: c.opts.OpenAIModel, status: rx.NewSubject[client.StatusUpdate]()}
	if a.model == "" {
		a.model = defaultModel
	}
	switch {
	case cfg != nil:
		a.oa = openai.NewClientWithConfig(*cfg)
	case c.opts.OpenAIKey != "":
		a.oa = openai.NewClient(c.opts.OpenAIKey)
	}
	return a
}

func (a *AI) Agent(agentID string, _ client.AgentClientOptions) client.Agent {
	return &agent{ai: a, id: agentID}
}

func (a *AI) ExecuteAIQuery(context.Context, string, string, client.AIQueryOptions) (client.AIQueryResponse, error) {
	return client.AIQueryResponse{}, fmt.Errorf("%w: ai query", constants.ErrUnsupported)
}

func (a *AI) ExecuteAIAPICall(context.Context, string, string, []string, bool) (client.AIAPIResponse, error) {
	return client.AIAPIResponse{}, fmt.Errorf("%w: ai api call", constants.ErrUnsupported)
}

type agent struct {
	ai *AI
	id string
}

func (ag *agent) Chat(prompt string, opts client.ChatOptions, jobID string) rx.Observable[string] {
	if ag.ai.oa == nil {
		return rx.Throw[string](fmt.Errorf("%w: no openai key configured", constants.ErrUnsupported))
	}
	return rx.Func[string](func(o rx.Observer[string]) rx.Subscription {
		ctx, cancel := context.WithCancel(ag.ai.c.ctx)
		go func() {
			defer cancel()
			answer, err := ag.answer(ctx, prompt, opts, jobID, o.Next)
			if ctx.Err() != nil && err != nil {
				return
			}
			persist := context.WithoutCancel(ctx)
			if ferr := ag.ai.c.jobs.Finish(persist, jobID, answer, err); ferr != nil {
				ag.ai.c.log.Warn("record job outcome", "job", jobID, "error", ferr)
			}
			if err != nil {
				o.Error(err)
				return
			}
			o.Complete()
		}()
		return rx.NewSubscription(cancel)
	})
}

func (ag *agent) answer(ctx context.Context, prompt string, opts client.ChatOptions, jobID string, emit func(string)) (string, error) {
	started := uuid.NewString()
	ag.publish(client.StatusUpdate{JobID: jobID, MessageID: started, Title: "Generating answer"})

	var messages []openai.ChatCompletionMessage
	if opts.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.Instructions})
	}
	memoryID := opts.MemoryID()
	if memoryID != "" {
		history, err := ag.ChatHistory(ctx, memoryID)
		if err != nil {
			return "", fmt.Errorf("load memory %s: %w", memoryID, err)
		}
		for _, h := range history {
			role := openai.ChatMessageRoleUser
			if h.Source == string(sourceAI) {
				role = openai.ChatMessageRoleAssistant
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Message})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    ag.ai.model,
		Messages: messages,
		Stream:   true,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	stream, err := ag.ai.oa.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", ag.id, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("agent %s: %w", ag.id, err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		sb.WriteString(resp.Choices[0].Delta.Content)
		emit(sb.String())
	}
	answer := sb.String()

	if memoryID != "" {
		if err := ag.remember(context.WithoutCancel(ctx), memoryID, prompt, answer); err != nil {
			ag.ai.c.log.Warn("store agent memory", "agent", ag.id, "memory", memoryID, "error", err)
		}
	}
	ag.publish(client.StatusUpdate{
		JobID:     jobID,
		MessageID: uuid.NewString(),
		Title:     "Answer ready",
		Tags: map[string]string{
			client.StatusResultTag:          answer,
			client.StatusParentMessageIDTag: started,
		},
	})
	return answer, nil
}

func (ag *agent) publish(u client.StatusUpdate) {
	u.AgentID = ag.id
	ag.ai.status.Next(u)
}

func (ag *agent) TranscribeAndChat(ctx context.Context, file client.File, opts client.ChatOptions, jobID string) (client.TranscribeAndChatResponse, error) {
	prompt, err := ag.transcribe(ctx, file)
	if err != nil {
		return client.TranscribeAndChatResponse{}, err
	}
	return client.TranscribeAndChatResponse{
		TranscribedPrompt: prompt,
		ResponseStream:    ag.Chat(prompt, opts, jobID),
	}, nil
}

func (ag *agent) transcribe(ctx context.Context, file client.File) (string, error) {
	if ag.ai.oa == nil {
		return "", fmt.Errorf("%w: no openai key configured", constants.ErrUnsupported)
	}
	if file.Reader == nil {
		return "", fmt.Errorf("%w: file %q has no content", constants.ErrPrecondition, file.Name)
	}
	resp, err := ag.ai.oa.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: file.Name,
		Reader:   file.Reader,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", file.Name, err)
	}
	return resp.Text, nil
}

func (ag *agent) ChatWithVoiceResponse(ctx context.Context, prompt string, opts client.ChatOptions, jobID string) (client.VoiceResponse, error) {
	if ag.ai.oa == nil {
		return client.VoiceResponse{}, fmt.Errorf("%w: no openai key configured", constants.ErrUnsupported)
	}
	answer, err := ag.answer(ctx, prompt, opts, jobID, func(string) {})
	var voice client.File
	if err == nil {
		voice, err = ag.speak(ctx, answer, opts.Voice)
	}
	if ctx.Err() == nil || err == nil {
		if ferr := ag.ai.c.jobs.Finish(context.WithoutCancel(ctx), jobID, answer, err); ferr != nil {
			ag.ai.c.log.Warn("record job outcome", "job", jobID, "error", ferr)
		}
	}
	if err != nil {
		return client.VoiceResponse{}, err
	}
	return client.VoiceResponse{Answer: answer, VoiceFile: voice}, nil
}

func (ag *agent) TranscribeAndChatWithVoiceResponse(ctx context.Context, file client.File, opts client.ChatOptions, jobID string) (client.TranscribeAndVoiceResponse, error) {
	prompt, err := ag.transcribe(ctx, file)
	if err != nil {
		return client.TranscribeAndVoiceResponse{}, err
	}
	resp, err := ag.ChatWithVoiceResponse(ctx, prompt, opts, jobID)
	if err != nil {
		return client.TranscribeAndVoiceResponse{}, err
	}
	return client.TranscribeAndVoiceResponse{TranscribedPrompt: prompt, VoiceResponse: resp}, nil
}

// speak renders text as mp3 audio.
func (ag *agent) speak(ctx context.Context, text string, opts *client.VoiceOptions) (client.File, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.VoiceAlloy,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}
	if opts != nil {
		if opts.Model != "" {
			req.Model = openai.SpeechModel(opts.Model)
		}
		if opts.Voice != "" {
			req.Voice = openai.SpeechVoice(opts.Voice)
		}
		req.Speed = opts.Speed
	}
	res, err := ag.ai.oa.CreateSpeech(ctx, req)
	if err != nil {
		return client.File{}, fmt.Errorf("agent %s speech: %w", ag.id, err)
	}
	defer res.Close()
	audio, err := io.ReadAll(res)
	if err != nil {
		return client.File{}, fmt.Errorf("agent %s speech: %w", ag.id, err)
	}
	return client.File{Name: "answer.mp3", Reader: bytes.NewReader(audio)}, nil
}

func (ag *agent) ObserveStatusUpdates() rx.Observable[client.StatusUpdate] {
	return rx.Func[client.StatusUpdate](func(o rx.Observer[client.StatusUpdate]) rx.Subscription {
		return ag.ai.status.Subscribe(rx.Observer[client.StatusUpdate]{
			Next: func(u client.StatusUpdate) {
				if u.AgentID == ag.id {
					o.Next(u)
				}
			},
			Error:    o.Error,
			Complete: o.Complete,
		})
	})
}

type source string

const (
	sourceUser source = "user"
	sourceAI   source = "ai"
)

func (ag *agent) ChatHistory(ctx context.Context, memoryID string) ([]client.HistoryItem, error) {
	sql, vars := surrealql.Select("*").
		FromTable(historyTable).
		Where("agentId = ? AND memoryId = ?", ag.id, memoryID).
		OrderBy("at").
		OrderBy("seq").
		Build()
	rows, err := ag.ai.c.be.Select(ctx, sql, vars)
	if err != nil {
		return nil, err
	}
	items := make([]client.HistoryItem, 0, len(rows))
	for _, r := range rows {
		id, _ := r["id"].(string)
		src, _ := r["source"].(string)
		msg, _ := r["message"].(string)
		items = append(items, client.HistoryItem{ID: id, Source: src, Message: msg})
	}
	return items, nil
}

func (ag *agent) remember(ctx context.Context, memoryID, prompt, answer string) error {
	at := time.Now().UTC().UnixNano()
	entry := func(src source, message string, seq int) *surrealql.CreateQuery {
		return surrealql.Create(historyTable).Content(map[string]any{
			"agentId":  ag.id,
			"memoryId": memoryID,
			"source":   string(src),
			"message":  message,
			"at":       at,
			"seq":      seq,
		})
	}
	sql, vars := surrealql.Begin().
		Query(entry(sourceUser, prompt, 0)).
		Query(entry(sourceAI, answer, 1)).
		Build()
	return ag.ai.c.be.Exec(ctx, sql, vars)
}
