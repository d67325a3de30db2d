package surreal

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/rx"
)

type call struct {
	SQL  string
	Vars map[string]any
}

// memBackend keeps tables in maps. Selects on a table return every row
// ordered by id and honor START and LIMIT; conditions are left to the
// query builder tests.
type memBackend struct {
	mu      sync.Mutex
	tables  map[string]map[string]client.DocumentData
	selects []call
	execs   []call
	lives   map[string]*memLive
	killed  []string
	liveSeq int
	closed  bool

	selectErr error
	liveErr   error
	onExec    func(call) error
}

type memLive struct {
	table string
	ch    chan Change
}

var _ backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{
		tables: map[string]map[string]client.DocumentData{},
		lives:  map[string]*memLive{},
	}
}

var (
	fromRe  = regexp.MustCompile(`\bFROM (\w+)`)
	limitRe = regexp.MustCompile(`\bLIMIT (\d+)`)
	startRe = regexp.MustCompile(`\bSTART (\d+)`)
)

func (m *memBackend) Select(_ context.Context, sql string, vars map[string]any) ([]client.DocumentData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selects = append(m.selects, call{SQL: sql, Vars: vars})
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	if rid, ok := recordVar(vars); ok {
		if doc, ok := m.tables[rid.Table][fmt.Sprint(rid.ID)]; ok {
			return []client.DocumentData{doc}, nil
		}
		return nil, nil
	}

	var rows map[string]client.DocumentData
	if match := fromRe.FindStringSubmatch(sql); match != nil {
		rows = m.tables[match[1]]
	}
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]client.DocumentData, 0, len(ids))
	for _, id := range ids {
		out = append(out, rows[id])
	}
	if match := startRe.FindStringSubmatch(sql); match != nil {
		start, _ := strconv.Atoi(match[1])
		out = out[min(start, len(out)):]
	}
	if match := limitRe.FindStringSubmatch(sql); match != nil {
		if limit, _ := strconv.Atoi(match[1]); limit < len(out) {
			out = out[:limit]
		}
	}
	return out, nil
}

// recordVar finds the record a statement targets.
func recordVar(vars map[string]any) (models.RecordID, bool) {
	for _, v := range vars {
		switch r := v.(type) {
		case models.RecordID:
			return r, true
		case *models.RecordID:
			return *r, true
		}
	}
	return models.RecordID{}, false
}

// contents returns the CONTENT objects bound to a statement, in the order of
// their seq field when they have one.
func contents(vars map[string]any) []map[string]any {
	var out []map[string]any
	for _, v := range vars {
		if c, ok := v.(map[string]any); ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i]["seq"].(int)
		b, _ := out[j]["seq"].(int)
		return a < b
	})
	return out
}

func (m *memBackend) Exec(_ context.Context, sql string, vars map[string]any) error {
	m.mu.Lock()
	c := call{SQL: sql, Vars: vars}
	m.execs = append(m.execs, c)
	hook := m.onExec
	m.mu.Unlock()
	if hook != nil {
		return hook(c)
	}
	return nil
}

func (m *memBackend) Live(_ context.Context, table string) (string, <-chan Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveErr != nil {
		return "", nil, m.liveErr
	}
	m.liveSeq++
	id := fmt.Sprintf("live-%d", m.liveSeq)
	l := &memLive{table: table, ch: make(chan Change, 64)}
	m.lives[id] = l
	return id, l.ch, nil
}

func (m *memBackend) Kill(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lives[id]; ok {
		close(l.ch)
		delete(m.lives, id)
	}
	m.killed = append(m.killed, id)
	return nil
}

func (m *memBackend) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// put stores doc and notifies the table's live queries.
func (m *memBackend) put(table string, doc client.DocumentData) {
	m.write(table, "UPDATE", doc)
}

func (m *memBackend) create(table string, doc client.DocumentData) {
	m.write(table, "CREATE", doc)
}

func (m *memBackend) write(table, action string, doc client.DocumentData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprint(doc["id"])
	if m.tables[table] == nil {
		m.tables[table] = map[string]client.DocumentData{}
	}
	m.tables[table][id] = doc
	for _, l := range m.lives {
		if l.table == table {
			l.ch <- Change{Action: action, ID: id, Record: doc}
		}
	}
}

func (m *memBackend) liveCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lives {
		if l.table == table {
			n++
		}
	}
	return n
}

func (m *memBackend) killedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.killed...)
}

func (m *memBackend) execCalls() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.execs...)
}

// recordSelects counts the selects of a single record.
func (m *memBackend) recordSelects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.selects {
		if _, ok := recordVar(c.Vars); ok {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, be *memBackend, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), client.Options{AppID: "app"}, append([]Option{withBackend(be)}, opts...)...)
	require.NoError(t, err)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

// collector gathers the events of one subscription.
type collector[T any] struct {
	mu     sync.Mutex
	values []T
	err    error
	done   bool
}

func (c *collector[T]) observer() rx.Observer[T] {
	return rx.Observer[T]{
		Next: func(v T) {
			c.mu.Lock()
			c.values = append(c.values, v)
			c.mu.Unlock()
		},
		Error: func(err error) {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
		},
		Complete: func() {
			c.mu.Lock()
			c.done = true
			c.mu.Unlock()
		},
	}
}

func (c *collector[T]) snapshot() (values []T, done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.values...), c.done, c.err
}

func (c *collector[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func newIgnore[T any]() rx.Observer[T] {
	return rx.Observer[T]{}
}
