package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/manifest"
	"github.com/roach88/polystore/internal/testutil"
)

// response mirrors CLIResponse with the payload left undecoded.
type response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   *CLIError       `json:"error"`
	TraceID string          `json:"trace_id"`
}

// cliEnv runs commands against one database. Each run builds a fresh
// command tree and service, as separate invocations of the binary would;
// the clock is shared so timestamps keep increasing.
type cliEnv struct {
	t     *testing.T
	db    string
	clock *testutil.DeterministicClock
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:     t,
		db:    filepath.Join(t.TempDir(), "cli.db"),
		clock: testutil.NewDeterministicClock(),
	}
}

func (c *cliEnv) exec(format string, args ...string) (string, error) {
	c.t.Helper()
	out := &bytes.Buffer{}
	opts := &RootOptions{TraceIDs: testutil.NewFixedTraceIDs(""), Clock: c.clock}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--format", format, "--db", c.db, "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// run executes a JSON-format command and decodes its response.
func (c *cliEnv) run(args ...string) (response, error) {
	c.t.Helper()
	out, err := c.exec("json", args...)
	var resp response
	require.NoError(c.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	assert.Equal(c.t, "trace-test", resp.TraceID)
	return resp, err
}

// ok runs a command that must succeed and decodes its data into v.
func (c *cliEnv) ok(v any, args ...string) {
	c.t.Helper()
	resp, err := c.run(args...)
	require.NoError(c.t, err)
	require.Equal(c.t, "ok", resp.Status, "error: %+v", resp.Error)
	if v != nil {
		require.NoError(c.t, json.Unmarshal(resp.Data, v))
	}
}

// fail runs a command that must fail and returns its error code and exit
// code.
func (c *cliEnv) fail(args ...string) (string, int) {
	c.t.Helper()
	resp, err := c.run(args...)
	require.Error(c.t, err)
	require.Equal(c.t, "error", resp.Status)
	require.NotNil(c.t, resp.Error)
	return resp.Error.Code, GetExitCode(err)
}

func (c *cliEnv) create(args ...string) EntityView {
	c.t.Helper()
	var v EntityView
	c.ok(&v, append([]string{"entity", "create"}, args...)...)
	return v
}

func TestInit(t *testing.T) {
	env := newCLIEnv(t)
	cfg := filepath.Join(t.TempDir(), "polystore.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("site:\n  name: Example\n  url: https://example.com\n"), 0o644))

	var r InitResult
	env.ok(&r, "--config", cfg, "init", "--test-suites")
	assert.Equal(t, env.db, r.Database)
	assert.Equal(t, "sqlite3", r.Driver)
	assert.Equal(t, entity.SiteID, r.Site.ID)
	assert.Equal(t, entity.TypeSite, r.Site.Type)
	assert.Equal(t, "Example", r.Site.Attributes["name"])
	assert.Equal(t, "https://example.com", r.Site.Attributes["url"])
	assert.Contains(t, r.Suites, "internal/entities")

	// A second init keeps the installed site.
	var again InitResult
	env.ok(&again, "init")
	assert.Equal(t, "Example", again.Site.Attributes["name"])
	assert.Equal(t, r.Site.Created, again.Site.Created)
	assert.Empty(t, again.Suites)
}

func TestInit_BadConfig(t *testing.T) {
	env := newCLIEnv(t)
	cfg := filepath.Join(t.TempDir(), "polystore.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cache:\n  size: 3\n"), 0o644))

	code, exit := env.fail("--config", cfg, "init")
	assert.Equal(t, ErrCodeConfig, code)
	assert.Equal(t, ExitCommandError, exit)
}

func TestSubtypeCommands(t *testing.T) {
	env := newCLIEnv(t)

	var added SubtypeResult
	env.ok(&added, "subtype", "add", "object", "blog", "--class", "blog_post")
	assert.Equal(t, "add", added.Action)
	assert.NotZero(t, added.ID)
	assert.Equal(t, "blog_post", added.Class)

	var again SubtypeResult
	env.ok(&again, "subtype", "add", "object", "blog", "--class", "other")
	assert.Equal(t, added.ID, again.ID)
	assert.Equal(t, "blog_post", again.Class)

	var updated SubtypeResult
	env.ok(&updated, "subtype", "update", "object", "blog", "--class", "article")
	assert.True(t, updated.Changed)

	var list SubtypeList
	env.ok(&list, "subtype", "list")
	require.Len(t, list, 1)
	assert.Equal(t, "article", list[0].Class)

	var removed SubtypeResult
	env.ok(&removed, "subtype", "remove", "object", "blog")
	assert.True(t, removed.Changed)
	env.ok(&removed, "subtype", "remove", "object", "blog")
	assert.False(t, removed.Changed)

	code, exit := env.fail("subtype", "add", "widget", "blog")
	assert.Equal(t, ErrCodeUsage, code)
	assert.Equal(t, ExitCommandError, exit)
}

func TestEntityLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	created := env.create("object", "--subtype", "blog", "--owner", "5", "--attr", "title=Hello")
	assert.NotZero(t, created.ID)
	assert.Equal(t, "blog", created.Subtype)
	assert.True(t, created.Enabled)
	assert.Equal(t, "Hello", created.Attributes["title"])

	id := itoa(created.ID)

	var got EntityView
	env.ok(&got, "entity", "get", id)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int64(5), got.OwnerID)
	assert.Equal(t, "Hello", got.Attributes["title"])

	var updated EntityView
	env.ok(&updated, "entity", "update", id, "--attr", "description=First post", "--access", "1")
	assert.Equal(t, "Hello", updated.Attributes["title"])
	assert.Equal(t, "First post", updated.Attributes["description"])
	assert.Equal(t, 1, updated.AccessLevel)

	// Logged-in level is invisible to anonymous callers.
	code, exit := env.fail("entity", "get", id)
	assert.Equal(t, ErrCodeNotFound, code)
	assert.Equal(t, ExitFailure, exit)
	env.ok(&got, "--as", "9", "entity", "get", id)
	assert.Equal(t, "First post", got.Attributes["description"])

	var state StateResult
	env.ok(&state, "entity", "disable", id)
	assert.Equal(t, "disabled", state.Action)
	env.fail("--admin", "entity", "get", id)
	env.ok(&got, "--admin", "--show-hidden", "entity", "get", id)
	assert.False(t, got.Enabled)

	env.ok(&state, "entity", "enable", id)
	env.ok(&got, "--admin", "entity", "get", id)
	assert.True(t, got.Enabled)

	env.ok(&state, "entity", "touch", id, "--at", "2030-05-01T10:00:00Z")
	env.ok(&got, "--admin", "entity", "get", id)
	assert.Equal(t, "2030-05-01T10:00:00.000Z", got.LastAction.String())

	code, _ = env.fail("entity", "enable", "999")
	assert.Equal(t, ErrCodeNotFound, code)
}

func TestEntityCommand_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad type", []string{"entity", "create", "widget"}},
		{"site type", []string{"entity", "create", "site"}},
		{"unknown attribute", []string{"entity", "create", "object", "--attr", "colour=red"}},
		{"bad bool", []string{"entity", "create", "user", "--attr", "admin=maybe"}},
		{"bad id", []string{"entity", "get", "abc"}},
		{"zero id", []string{"entity", "disable", "0"}},
		{"bad time", []string{"entity", "touch", "1", "--at", "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := env.fail(tt.args...)
			assert.Equal(t, ErrCodeUsage, code)
			assert.Equal(t, ExitCommandError, exit)
		})
	}
}

func TestEntityGet_Text(t *testing.T) {
	env := newCLIEnv(t)
	created := env.create("object", "--subtype", "blog", "--attr", "title=Hello")

	out, err := env.exec("text", "entity", "get", itoa(created.ID))
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "entity_get_text", []byte(out))
}

func TestQueryCommand(t *testing.T) {
	env := newCLIEnv(t)
	a := env.create("object", "--subtype", "blog", "--attr", "title=Alpha")
	b := env.create("object", "--subtype", "blog", "--attr", "title=beta")
	c := env.create("object", "--subtype", "blog", "--attr", "title=Gamma", "--owner", "7")
	f := env.create("object", "--subtype", "file", "--attr", "title=Report")
	plain := env.create("object", "--attr", "title=Untyped")
	env.create("group", "--attr", "name=Team")

	var list EntityList
	env.ok(&list, "query", "--type", "object", "--subtype", "blog")
	assert.Equal(t, int64(3), list.Count)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--subtype", "blog", "--limit", "2", "--order", "created_time")
	assert.Equal(t, int64(3), list.Count)
	assert.Equal(t, []int64{a.ID, b.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--subtype", "blog", "--limit", "2", "--offset", "2", "--order", "created_time")
	assert.Equal(t, []int64{c.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--count")
	assert.Equal(t, int64(5), list.Count)
	assert.Empty(t, list.Entities)

	env.ok(&list, "query", "--type", "object", "--no-subtype")
	assert.Equal(t, []int64{plain.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--subtype", "file", "--no-subtype", "--order", "created_time")
	assert.Equal(t, []int64{f.ID, plain.ID}, ids(list))

	env.ok(&list, "query", "--owner", "7")
	assert.Equal(t, []int64{c.ID}, ids(list))

	env.ok(&list, "query", "--id", itoa(a.ID), "--id", itoa(f.ID), "--order", "created_time")
	assert.Equal(t, []int64{a.ID, f.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--attr", "title=BETA", "--nocase")
	assert.Equal(t, []int64{b.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--attr", "title=Alpha", "--attr", "description=none", "--match-any")
	assert.Equal(t, []int64{a.ID}, ids(list))

	env.ok(&list, "query", "--type", "object", "--batch", "--batch-size", "2", "--limit", "-1", "--order", "created_time")
	assert.Equal(t, []int64{a.ID, b.ID, c.ID, f.ID, plain.ID}, ids(list))
	assert.Equal(t, int64(5), list.Count)

	list = EntityList{}
	env.ok(&list, "query", "--type", "object", "--subtype", "blog", "--raw", "--limit", "1")
	require.Len(t, list.Entities, 1)
	assert.Empty(t, list.Entities[0].Attributes)

	env.ok(&list, "query", "--type", "object", "--created-after", "2030-01-01T00:00:00Z")
	assert.Equal(t, int64(0), list.Count)
	assert.Empty(t, list.Entities)
}

func TestQueryCommand_UsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad type", []string{"query", "--type", "widget"}},
		{"bad direction", []string{"query", "--order", "created_time:sideways"}},
		{"bad order column", []string{"query", "--order", "colour"}},
		{"attribute without type", []string{"query", "--attr", "title=x"}},
		{"bad time", []string{"query", "--created-after", "soon"}},
		{"bad id", []string{"query", "--owner", "seven"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := env.fail(tt.args...)
			assert.Equal(t, ErrCodeUsage, code)
			assert.Equal(t, ExitCommandError, exit)
		})
	}
}

func TestBootstrapCommand(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.cue"), []byte(`
package site

subtype: object: blog: {
	class:  "blog_post"
	public: true
}
public: ["user"]
`), 0o644))

	var r struct {
		Manifest string `json:"manifest"`
		Files    int    `json:"files"`
		manifest.Report
	}
	env.ok(&r, "bootstrap", dir)
	assert.Equal(t, dir, r.Manifest)
	assert.Equal(t, 1, r.Files)
	assert.Equal(t, []string{"object:blog"}, r.Added)
	assert.Equal(t, []string{"object:blog", "user"}, r.Registered)

	var dirList TypeDirectory
	env.ok(&dirList, "types", "list")
	assert.Equal(t, []string{"blog"}, dirList[entity.TypeObject])

	code, exit := env.fail("bootstrap", t.TempDir())
	assert.Equal(t, ErrCodeManifest, code)
	assert.Equal(t, ExitCommandError, exit)

	code, _ = env.fail("bootstrap")
	assert.Equal(t, ErrCodeManifest, code)
}

func TestTypesCommands(t *testing.T) {
	env := newCLIEnv(t)

	var empty TypeDirectory
	env.ok(&empty, "types", "list")
	assert.Empty(t, empty)

	var added TypeChange
	env.ok(&added, "types", "register", "object", "blog")
	assert.True(t, added.Changed)

	var again TypeChange
	env.ok(&again, "types", "register", "object", "blog")
	assert.False(t, again.Changed, "re-registering an existing pair changes nothing")

	var group TypeChange
	env.ok(&group, "types", "register", "group")
	assert.True(t, group.Changed)

	var all TypeDirectory
	env.ok(&all, "types", "list")
	assert.Equal(t, []string{"blog"}, all[entity.TypeObject])
	_, hasGroup := all[entity.TypeGroup]
	assert.True(t, hasGroup)

	var groups TypeDirectory
	env.ok(&groups, "types", "list", "group")
	assert.Len(t, groups, 1)
	assert.Contains(t, groups, entity.TypeGroup)

	var removed TypeChange
	env.ok(&removed, "types", "unregister", "object", "blog")
	assert.True(t, removed.Changed)

	var missing TypeChange
	env.ok(&missing, "types", "unregister", "object", "blog")
	assert.False(t, missing.Changed)
}

func ids(l EntityList) []int64 {
	out := make([]int64, 0, len(l.Entities))
	for _, e := range l.Entities {
		out = append(out, e.ID)
	}
	return out
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
