package commands

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/internal/fakesquid"
	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/logger"
)

// runCLI executes squidctl against a fake client seeded by seed.
func runCLI(t *testing.T, seed func(*fakesquid.Client), stdin string, args ...string) (string, *fakesquid.Client, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("SQUID_CLIENT_APP_ID", "cli-test")

	watchOnce = false
	watchQuery = queryFlags{}
	pageQuery = queryFlags{}
	pageSize = 0
	chatFlags.voiceOut = ""

	var fake *fakesquid.Client
	prev := factory
	factory = func(logger.Logger) squid.Factory {
		return func(_ context.Context, opts client.Options) (client.Client, error) {
			fake = fakesquid.New(opts)
			if seed != nil {
				seed(fake)
			}
			return fake, nil
		}
	}
	t.Cleanup(func() { factory = prev })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--log-format", "text"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), fake, err
}

func lines(t *testing.T, out string) []string {
	t.Helper()
	var res []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		res = append(res, scanner.Text())
	}
	return res
}

func seedUsers(c *fakesquid.Client) {
	users := c.Coll("users", "")
	users.Put("1", client.DocumentData{"id": "1", "name": "ann", "age": 31})
	users.Put("2", client.DocumentData{"id": "2", "name": "bob", "age": 42})
}

func TestWatchOnce(t *testing.T) {
	out, _, err := runCLI(t, seedUsers, "", "watch", "users", "--once", "--sort", "-name")
	require.NoError(t, err)

	got := lines(t, out)
	require.Len(t, got, 1)
	var docs []client.DocumentData
	require.NoError(t, json.Unmarshal([]byte(got[0]), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "bob", docs[0]["name"])
}

func TestWatchWhereParsesJSONValues(t *testing.T) {
	out, _, err := runCLI(t, seedUsers, "", "watch", "users", "--once", "--where", "age=42")
	require.NoError(t, err)

	var docs []client.DocumentData
	require.NoError(t, json.Unmarshal([]byte(lines(t, out)[0]), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "bob", docs[0]["name"])
}

func TestWatchRejectsMalformedWhere(t *testing.T) {
	_, _, err := runCLI(t, seedUsers, "", "watch", "users", "--once", "--where", "age")
	require.ErrorContains(t, err, "want field=value")
}

func TestPage(t *testing.T) {
	seed := func(c *fakesquid.Client) {
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			c.Coll("letters", "").Put(id, client.DocumentData{"id": id})
		}
	}
	out, _, err := runCLI(t, seed, "n\nn\nbogus\np\nq\n", "page", "letters", "--size", "2", "--sort", "id")
	require.NoError(t, err)

	var pages []pageView
	for _, l := range lines(t, out) {
		var v pageView
		require.NoError(t, json.Unmarshal([]byte(l), &v))
		pages = append(pages, v)
	}
	require.Len(t, pages, 4)
	assert.Equal(t, "a", pages[0].Page[0]["id"])
	assert.True(t, pages[0].HasNext)
	assert.Equal(t, "c", pages[1].Page[0]["id"])
	assert.Len(t, pages[2].Page, 1)
	assert.False(t, pages[2].HasNext)
	assert.Equal(t, "c", pages[3].Page[0]["id"])
}

func TestProduce(t *testing.T) {
	_, fake, err := runCLI(t, nil, "", "produce", "events", "1", "hello", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "hello", map[string]any{"a": float64(1)}}, fake.Q("events", "").Produced())
}

func TestChatStreamsAnswer(t *testing.T) {
	seed := func(c *fakesquid.Client) {
		c.FakeAI().FakeAgent("helper").SetAutoReply(func(string) []string { return []string{"Hi ", "there"} })
	}
	out, fake, err := runCLI(t, seed, "", "chat", "helper", "hello?", "--model", "small")
	require.NoError(t, err)
	assert.Equal(t, "Hi there\n", out)

	call := fake.FakeAI().FakeAgent("helper").LastCall()
	assert.Equal(t, "hello?", call.Prompt)
	assert.Equal(t, "small", call.Options.Model)
}

func TestChatVoiceOut(t *testing.T) {
	seed := func(c *fakesquid.Client) {
		c.FakeAI().FakeAgent("helper").SetAutoReply(func(string) []string { return []string{"Hello"} })
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "answer.mp3")

	out, fake, err := runCLI(t, seed, "", "chat", "helper", "hi", "--voice-out", target)
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out)
	assert.True(t, fake.FakeAI().FakeAgent("helper").LastCall().Voice)

	audio, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "voice:Hello", string(audio))
}

func TestMissingAppID(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SQUID_CLIENT_APP_ID", "")
	rootCmd.SetArgs([]string{"produce", "events", "x"})
	rootCmd.SetErr(io.Discard)
	err := rootCmd.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "app_id is required")
}
