package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/pkg/client"
)

var (
	pageQuery     queryFlags
	pageSize      int
	pageSubscribe bool
)

var pageCmd = &cobra.Command{
	Use:   "page <collection>",
	Short: "Page through a collection interactively",
	Long: `Print one page at a time. Read commands from stdin, one per line:
n (next page), p (previous page), q (quit).`,
	Args: cobra.ExactArgs(1),
	RunE: runPage,
}

func init() {
	pageQuery.register(pageCmd)
	pageCmd.Flags().IntVar(&pageSize, "size", 0, "documents per page (default 100)")
	pageCmd.Flags().BoolVar(&pageSubscribe, "subscribe", false, "refresh the page when the collection changes")
}

type pageView struct {
	Page    []client.DocumentData `json:"page"`
	HasNext bool                  `json:"hasNext"`
	HasPrev bool                  `json:"hasPrev"`
}

func runPage(cmd *cobra.Command, args []string) error {
	c, err := provider.Client(cmd.Context(), cfg.Client)
	if err != nil {
		return err
	}
	query, err := pageQuery.build(c, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := json.NewEncoder(cmd.OutOrStdout())
	failed := make(chan error, 1)
	ready := make(chan struct{}, 1)
	p := squid.NewPaginationBinding(func(s squid.PaginationState) {
		switch {
		case s.Err != nil:
			select {
			case failed <- s.Err:
			default:
			}
			cancel()
		case !s.Loading:
			if err := out.Encode(pageView{Page: s.Data, HasNext: s.HasNext, HasPrev: s.HasPrev}); err != nil {
				log.Warn("write page", "error", err)
			}
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	}, squid.WithLogger(log), squid.WithName("page"))
	defer p.Close()

	p.Update(query, client.PaginationOptions{PageSize: pageSize, Subscribe: pageSubscribe})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	// Commands are read only once the requested page was printed.
	waiting := true
	for {
		if waiting {
			select {
			case <-ctx.Done():
				return firstErr(failed)
			case <-ready:
				waiting = false
			}
		}
		select {
		case <-ctx.Done():
			return firstErr(failed)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "n", "next":
				waiting = p.Next()
			case "p", "prev":
				waiting = p.Prev()
			case "q", "quit":
				return nil
			case "":
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown command %q: use n, p or q\n", line)
			}
		}
	}
}

func firstErr(failed <-chan error) error {
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}
