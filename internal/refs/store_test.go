package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/substrate/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "refs"))
}

func writeLegacy(t *testing.T, s *FileStore, name, body string) {
	t.Helper()
	path := s.legacyPath(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// --- ValidateName ---

func TestValidateName(t *testing.T) {
	valid := []string{"a", "personas/hemingway", "sites/reddit/format", "with space/ok", "v1.2"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "/abs", "trail/", "a//b", "../etc", "a/../b", "a/./b", `a\b`, "a/.hidden", "nul\x00"}
	for _, name := range invalid {
		err := ValidateName(name)
		assert.ErrorIs(t, err, ErrInvalidName, "%q", name)
	}
}

// --- Put / Get ---

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	meta := value.Map{
		"site":    value.String("reddit"),
		"version": value.Int(3),
		"ratio":   value.Float(2),
		"score":   value.Float(0.25),
		"tags":    value.List{value.String("a"), value.String("b")},
		"limits":  value.Map{"words": value.Int(300), "strict": value.Bool(true)},
	}
	content := "Title: {{title}}\n\nMulti-line body\n  with indentation\n"

	put, err := s.Put("sites/reddit", content, meta)
	require.NoError(t, err)
	assert.Equal(t, CurrentFormat, put.FormatVersion)

	got, err := s.Get("sites/reddit")
	require.NoError(t, err)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, meta, got.Metadata)
	assert.Equal(t, CurrentFormat, got.FormatVersion)
	assert.Equal(t, "sites/reddit", got.Name)
}

func TestPut_InvalidNameDoesNotTouchDisk(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("../escape", "x", nil)
	require.ErrorIs(t, err, ErrInvalidName)

	_, statErr := os.Stat(s.Root())
	assert.True(t, os.IsNotExist(statErr), "store root should not be created by a rejected write")
}

func TestPut_ReplacesAndKeepsCreated(t *testing.T) {
	s := newTestStore(t)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	timeNow = func() time.Time { return first }
	t.Cleanup(func() { timeNow = time.Now })

	_, err := s.Put("notes/a", "one", value.Map{"k": value.String("v1")})
	require.NoError(t, err)

	timeNow = func() time.Time { return second }
	_, err = s.Put("notes/a", "two", value.Map{"other": value.Bool(false)})
	require.NoError(t, err)

	got, err := s.Get("notes/a")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)
	assert.Equal(t, value.Map{"other": value.Bool(false)}, got.Metadata, "metadata is fully replaced")
	assert.True(t, got.Created.Equal(first), "created = %v", got.Created)
	assert.True(t, got.Updated.Equal(second), "updated = %v", got.Updated)
}

func TestPut_WritesCommentedYAML(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put("a/b", "hello", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Root(), "a", "b.yaml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# reference: a/b\n"))
	assert.Contains(t, string(data), "format_version: 1")
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing/thing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing/thing")
}

func TestReferenceCRUDScenario(t *testing.T) {
	s := newTestStore(t)
	meta := value.Map{"style": value.String("minimalist")}

	_, err := s.Put("personas/hemingway", "Write short sentences.", meta)
	require.NoError(t, err)

	got, err := s.Get("personas/hemingway")
	require.NoError(t, err)
	assert.Equal(t, "Write short sentences.", got.Content)
	assert.Equal(t, meta, got.Metadata)

	require.NoError(t, s.Delete("personas/hemingway"))
	_, err = s.Get("personas/hemingway")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Legacy format ---

func TestGet_LegacyJSON(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s, "old/prompt", `{"content": "legacy body", "metadata": {"persona": "poe", "n": 2}, "created": "2024-05-01T10:00:00"}`)

	got, err := s.Get("old/prompt")
	require.NoError(t, err)
	assert.Equal(t, LegacyFormat, got.FormatVersion)
	assert.Equal(t, "legacy body", got.Content)
	assert.Equal(t, value.Map{"persona": value.String("poe"), "n": value.Int(2)}, got.Metadata)
	assert.Equal(t, 2024, got.Created.Year())
}

func TestPut_OverLegacySwitchesFormat(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s, "old/prompt", `{"content": "legacy body", "metadata": {}}`)

	_, err := s.Put("old/prompt", "new body", nil)
	require.NoError(t, err)

	got, err := s.Get("old/prompt")
	require.NoError(t, err)
	assert.Equal(t, CurrentFormat, got.FormatVersion)
	assert.Equal(t, "new body", got.Content)

	_, statErr := os.Stat(s.legacyPath("old/prompt"))
	assert.True(t, os.IsNotExist(statErr), "legacy file should be removed after a current write")
}

func TestGet_CorruptLegacyIsAnError(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s, "bad", `{not json`)

	_, err := s.Get("bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// --- List ---

func TestList_OrderingPrefixAndDedupe(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"sites/twitter", "personas/poe", "sites/reddit", "pipeline/step1"} {
		_, err := s.Put(name, name, nil)
		require.NoError(t, err)
	}
	writeLegacy(t, s, "sites/legacy", `{"content": "x"}`)
	writeLegacy(t, s, "sites/reddit", `{"content": "shadowed"}`)

	all, err := s.List("")
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, sum := range all {
		names[i] = sum.Name
	}
	assert.Equal(t, []string{"personas/poe", "pipeline/step1", "sites/legacy", "sites/reddit", "sites/twitter"}, names)

	sites, err := s.List("sites/")
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, "sites/legacy", sites[0].Name)
	assert.Equal(t, LegacyFormat, sites[0].FormatVersion)
	assert.Equal(t, CurrentFormat, sites[1].FormatVersion, "current format wins when both exist")
}

func TestList_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	got, err := s.List("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Delete ---

func TestDelete_TwiceFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put("tmp/x", "x", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete("tmp/x"))
	assert.ErrorIs(t, s.Delete("tmp/x"), ErrNotFound)
}

func TestDelete_RemovesLegacyAndPrunesDirs(t *testing.T) {
	s := newTestStore(t)
	writeLegacy(t, s, "deep/nested/old", `{"content": "x"}`)

	require.NoError(t, s.Delete("deep/nested/old"))
	_, err := s.Get("deep/nested/old")
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(filepath.Join(s.Root(), "deep"))
	assert.True(t, os.IsNotExist(statErr), "empty parent directories should be pruned")
}

func TestDelete_InvalidName(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Delete("a/../../b"), ErrInvalidName)
}

// --- Concurrency ---

func TestConcurrentWritesNeverTear(t *testing.T) {
	s := newTestStore(t)
	bodies := make([]string, 8)
	for i := range bodies {
		bodies[i] = strings.Repeat(fmt.Sprintf("writer-%d ", i), 500)
	}
	_, err := s.Put("shared/doc", bodies[0], nil)
	require.NoError(t, err)

	valid := map[string]bool{}
	for _, b := range bodies {
		valid[b] = true
	}

	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = s.Put("shared/doc", body, nil)
			}
		}(bodies[i])
	}

	errs := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for k := 0; k < 200; k++ {
			ref, err := s.Get("shared/doc")
			if err != nil {
				errs <- err
				return
			}
			if !valid[ref.Content] {
				errs <- fmt.Errorf("torn read: %d bytes", len(ref.Content))
				return
			}
		}
	}()

	wg.Wait()
	<-done
	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}

// --- Compose ---

func TestCompose_Priority(t *testing.T) {
	s := newTestStore(t)
	for name, body := range map[string]string{"a": "A", "b": "B", "tmpl": "T"} {
		_, err := s.Put(name, body, nil)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		in   Input
		want string
		kind string
	}{
		{"ref wins", Input{Ref: "a", Refs: []string{"b"}, PromptRef: "tmpl", Prompt: "p"}, "A", "single_reference"},
		{"refs joined", Input{Refs: []string{"a", "b"}, Prompt: "p"}, "A" + Separator + "B", "multiple_references"},
		{"prompt ref", Input{PromptRef: "tmpl", Prompt: "p"}, "T", "prompt_reference"},
		{"prompt", Input{Prompt: "p"}, "p", "direct_prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compose(s, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.kind, tt.in.Kind())
		})
	}
}

func TestCompose_Errors(t *testing.T) {
	s := newTestStore(t)

	_, err := Compose(s, Input{})
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = Compose(s, Input{Refs: []string{"missing"}})
	assert.ErrorIs(t, err, ErrNotFound)
}
