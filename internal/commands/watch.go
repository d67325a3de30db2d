package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/pkg/client"
)

type queryFlags struct {
	integration string
	where       []string
	sort        []string
	limit       int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.integration, "integration", "", "integration id of the collection")
	cmd.Flags().StringSliceVar(&f.where, "where", nil, "equality filter field=value, repeatable")
	cmd.Flags().StringSliceVar(&f.sort, "sort", nil, "sort fields, -field for descending")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of documents")
}

// build resolves the flags into a query on c. Filter values are parsed as
// JSON when they can be, so --where age=42 compares numbers.
func (f *queryFlags) build(c client.Client, collection string) (client.Query, error) {
	desc := client.NewQuery(collection, f.integration)
	for _, w := range f.where {
		field, raw, ok := strings.Cut(w, "=")
		if !ok {
			return nil, fmt.Errorf("--where %q: want field=value", w)
		}
		desc = desc.Eq(field, parseValue(raw))
	}
	for _, s := range f.sort {
		desc = desc.SortBy(strings.TrimPrefix(s, "-"), !strings.HasPrefix(s, "-"))
	}
	if f.limit > 0 {
		desc = desc.WithLimit(f.limit)
	}
	return client.DeserializeQuery(c, desc)
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

var (
	watchQuery queryFlags
	watchOnce  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <collection>",
	Short: "Print the results of a query every time they change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchQuery.register(watchCmd)
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "fetch once and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := provider.Client(cmd.Context(), cfg.Client)
	if err != nil {
		return err
	}
	query, err := watchQuery.build(c, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := json.NewEncoder(cmd.OutOrStdout())
	var (
		mu       sync.Mutex
		failed   error
		finished bool
	)
	b := squid.NewQueryBinding(func(s squid.State[[]client.DocumentData]) {
		mu.Lock()
		defer mu.Unlock()
		if s.Loading || finished {
			return
		}
		if s.Err != nil {
			failed, finished = s.Err, true
			cancel()
			return
		}
		if err := out.Encode(s.Data); err != nil {
			log.Warn("write results", "error", err)
		}
		if watchOnce || s.Complete {
			finished = true
			cancel()
		}
	}, squid.WithLogger(log), squid.WithContext(ctx), squid.WithName("watch"))
	defer b.Close()

	b.Update(query, squid.QueryOptions{Subscribe: !watchOnce})
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return failed
}
