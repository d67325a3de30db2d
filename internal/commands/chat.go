package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/pkg/client"
)

var chatFlags struct {
	memory       string
	model        string
	instructions string
	temperature  float32
	jobID        string
	voiceOut     string
}

var chatCmd = &cobra.Command{
	Use:   "chat <agent> <prompt>",
	Short: "Ask an AI agent and stream its answer",
	Args:  cobra.ExactArgs(2),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.memory, "memory", "", "memory id continuing an earlier conversation")
	chatCmd.Flags().StringVar(&chatFlags.model, "model", "", "model overriding the configured one")
	chatCmd.Flags().StringVar(&chatFlags.instructions, "instructions", "", "system instructions")
	chatCmd.Flags().Float32Var(&chatFlags.temperature, "temperature", 0, "sampling temperature")
	chatCmd.Flags().StringVar(&chatFlags.jobID, "job", "", "job id recording the answer")
	chatCmd.Flags().StringVar(&chatFlags.voiceOut, "voice-out", "", "write the spoken answer to this file")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, err := provider.Context(cmd.Context(), cfg.Client)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := client.ChatOptions{Model: chatFlags.model, Instructions: chatFlags.instructions}
	if cmd.Flags().Changed("temperature") {
		opts.Temperature = &chatFlags.temperature
	}
	if chatFlags.memory != "" {
		opts.Memory = &client.MemoryOptions{MemoryID: chatFlags.memory}
	}

	w := cmd.OutOrStdout()
	var (
		sent      atomic.Bool
		printed   string
		finished  bool
		streaming bool
		failed    = make(chan error, 1)
	)
	chat, err := squid.NewAIAgent(ctx, args[0], func(s squid.AIChatState) {
		if !sent.Load() || finished {
			return
		}
		// States before the request starts loading belong to the idle chat.
		if !streaming {
			if !s.Loading {
				return
			}
			streaming = true
		}
		if strings.HasPrefix(s.Data, printed) {
			fmt.Fprint(w, s.Data[len(printed):])
			printed = s.Data
		}
		switch {
		case s.Err != nil:
			finished = true
			failed <- s.Err
			cancel()
		case s.Complete:
			finished = true
			fmt.Fprintln(w)
			if chatFlags.voiceOut != "" {
				if err := saveVoice(s.History, chatFlags.voiceOut); err != nil {
					failed <- err
				}
			}
			cancel()
		}
	}, squid.WithLogger(log), squid.WithContext(ctx), squid.WithChatOptions(opts))
	if err != nil {
		return err
	}
	defer chat.Close()

	sent.Store(true)
	if chatFlags.voiceOut != "" {
		chat.ChatWithVoiceResponse(args[1], nil, chatFlags.jobID)
	} else {
		chat.Chat(args[1], nil, chatFlags.jobID)
	}
	<-ctx.Done()
	return firstErr(failed)
}

// saveVoice writes the voice file of the latest answer in history to path.
func saveVoice(history []squid.ChatMessage, path string) error {
	for i := len(history) - 1; i >= 0; i-- {
		msg, ok := history[i].(*squid.AIMessage)
		if !ok || msg.VoiceFile == nil {
			continue
		}
		audio, err := io.ReadAll(msg.VoiceFile.Reader)
		if err != nil {
			return fmt.Errorf("read voice answer: %w", err)
		}
		return os.WriteFile(path, audio, 0o644)
	}
	return fmt.Errorf("no voice answer received")
}
