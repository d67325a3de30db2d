package squid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/squidcloud/squid-go/internal/fakesquid"
	"github.com/squidcloud/squid-go/pkg/client"
)

// recorder collects every value handed to an OnChange callback.
type recorder[S any] struct {
	mu   sync.Mutex
	list []S
}

func (r *recorder[S]) add(s S) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, s)
}

func (r *recorder[S]) all() []S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]S(nil), r.list...)
}

func (r *recorder[S]) last() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero S
	if len(r.list) == 0 {
		return zero
	}
	return r.list[len(r.list)-1]
}

func (r *recorder[S]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// eventually polls cond until it holds or a second passed.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within a second")
}

func newFakeContext(t *testing.T, opts ...func(*client.Options)) (context.Context, *fakesquid.Client) {
	t.Helper()
	o := client.Options{AppID: "test-app", Region: "local"}
	for _, fn := range opts {
		fn(&o)
	}
	c := fakesquid.New(o)
	return WithClient(context.Background(), c), c
}

func withAPIKey(o *client.Options) {
	o.APIKey = "secret"
}
