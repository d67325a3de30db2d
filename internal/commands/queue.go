package commands

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	squid "github.com/squidcloud/squid-go"
)

var queueIntegration string

var produceCmd = &cobra.Command{
	Use:   "produce <queue> <message>...",
	Short: "Send messages to a queue",
	Long:  `Send messages to a queue. Messages that parse as JSON are sent as values, others as strings.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runProduce,
}

var consumeCmd = &cobra.Command{
	Use:   "consume <queue>",
	Short: "Print messages as they arrive on a queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsume,
}

func init() {
	for _, cmd := range []*cobra.Command{produceCmd, consumeCmd} {
		cmd.Flags().StringVar(&queueIntegration, "integration", "", "integration id of the queue")
	}
}

func runProduce(cmd *cobra.Command, args []string) error {
	c, err := provider.Client(cmd.Context(), cfg.Client)
	if err != nil {
		return err
	}
	messages := make([]any, 0, len(args)-1)
	for _, raw := range args[1:] {
		messages = append(messages, parseValue(raw))
	}
	if err := c.Queue(args[0], queueIntegration).Produce(cmd.Context(), messages); err != nil {
		return err
	}
	log.Info("produced", "queue", args[0], "count", len(messages))
	return nil
}

func runConsume(cmd *cobra.Command, args []string) error {
	c, err := provider.Client(cmd.Context(), cfg.Client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := json.NewEncoder(cmd.OutOrStdout())
	failed := make(chan error, 1)
	b := squid.NewQueueBinding(func(s squid.State[any]) {
		switch {
		case s.Err != nil:
			select {
			case failed <- fmt.Errorf("consume %s: %w", args[0], s.Err):
			default:
			}
			cancel()
		case s.Complete:
			cancel()
		case !s.Loading:
			if err := out.Encode(s.Data); err != nil {
				log.Warn("write message", "error", err)
			}
		}
	}, squid.WithLogger(log), squid.WithName("consume"))
	defer b.Close()

	b.Update(c.Queue(args[0], queueIntegration), squid.QueueOptions{}, args[0], queueIntegration)
	<-ctx.Done()
	return firstErr(failed)
}
