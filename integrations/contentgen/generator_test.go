package contentgen

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBackend struct {
	replies []string
	errs    []error
	calls   int
}

func (b *scriptedBackend) Model() string { return "test-model" }

func (b *scriptedBackend) Complete(ctx context.Context, prompt string) (string, error) {
	i := b.calls
	b.calls++
	if i < len(b.errs) && b.errs[i] != nil {
		return "", b.errs[i]
	}
	if i < len(b.replies) {
		return b.replies[i], nil
	}
	return b.replies[len(b.replies)-1], nil
}

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestParseDrafts(t *testing.T) {
	fenced := "here you go\n```json\n[{\"draft\":\"空気の話\",\"has_cta\":true}]\n```\nbye"
	drafts, err := parseDrafts(fenced)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "空気の話", drafts[0].Draft)
	assert.True(t, drafts[0].HasCTA)
	assert.Equal(t, []string{}, drafts[0].Hashtags)

	bare := `Sure! [{"draft":"a"},{"draft":"  "},{"draft":"b","hashtags":["#x"]}]`
	drafts, err = parseDrafts(bare)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, []string{"#x"}, drafts[1].Hashtags)

	_, err = parseDrafts("no json here")
	assert.Error(t, err)
}

func TestGenerator_NoBackendReturnsMocks(t *testing.T) {
	g := NewGenerator(nil, 3, nil, testRNG())
	drafts, err := g.Generate(context.Background(), domainGenerator.Request{Count: 4, MemoContent: "花粉がつらい", TargetStage: "S2"})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	seen := map[string]bool{}
	for _, d := range drafts {
		assert.True(t, d.IsMock)
		assert.Equal(t, "S2", d.Stage)
		assert.Equal(t, mockModel, d.AIModel)
		assert.LessOrEqual(t, len([]rune(d.Draft)), mockMaxRunes)
		seen[d.Draft] = true
	}
	assert.Len(t, seen, 4, "mock copies must differ")
	assert.Contains(t, drafts[0].Draft, "花粉")
}

func TestGenerator_RetriesOnPrefixCollision(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`[{"draft":"今朝の空気はいつもより重い"},{"draft":"換気のタイミングを考える"}]`,
		`[{"draft":"夜中の二時、ふと気づいた"},{"draft":"換気のタイミングを考える"}]`,
	}}
	g := NewGenerator(backend, 3, nil, testRNG())

	drafts, err := g.Generate(context.Background(), domainGenerator.Request{
		Count:              2,
		ProhibitedPrefixes: []string{dedupe.Prefix("今朝の空気はいつもより重い気がする")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
	require.Len(t, drafts, 2)
	assert.Equal(t, "夜中の二時、ふと気づいた", drafts[0].Draft)
	assert.Equal(t, "test-model", drafts[0].AIModel)
	assert.False(t, drafts[0].IsMock)
}

func TestGenerator_KeepsPartialAfterLastAttempt(t *testing.T) {
	backend := &scriptedBackend{replies: []string{`[{"draft":"同じ書き出しの投稿です"},{"draft":"別の書き出しの投稿"}]`}}
	g := NewGenerator(backend, 3, nil, testRNG())

	drafts, err := g.Generate(context.Background(), domainGenerator.Request{Count: 2, ProhibitedPrefixes: []string{"同じ書き出しの投稿"}})
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls)
	require.Len(t, drafts, 1)
	assert.Equal(t, "別の書き出しの投稿", drafts[0].Draft)
}

func TestGenerator_AllAttemptsFailFallsBackToMock(t *testing.T) {
	fail := errors.New("quota")
	backend := &scriptedBackend{errs: []error{fail, fail, fail}, replies: []string{""}}
	g := NewGenerator(backend, 3, nil, testRNG())

	drafts, err := g.Generate(context.Background(), domainGenerator.Request{Count: 2})
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.True(t, drafts[0].IsMock)
}

func TestGenerator_MasksNGWords(t *testing.T) {
	backend := &scriptedBackend{replies: []string{`[{"draft":"絶対に治る空気の話"}]`}}
	g := NewGenerator(backend, 3, []string{"絶対"}, testRNG())

	drafts, err := g.Generate(context.Background(), domainGenerator.Request{Count: 1, NGWords: []string{"治る"}})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "**に**空気の話", drafts[0].Draft)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(domainGenerator.Request{Count: 5, Season: "spring", MemoContent: "ペット"}, []string{"t1", "t2"})
	assert.Contains(t, prompt, "EXACTLY 5 DRAFTS")
	assert.Contains(t, prompt, "Season: spring")
	assert.Contains(t, prompt, "t1, t2")
	assert.Contains(t, prompt, "ペット")

	prompt = buildPrompt(domainGenerator.Request{Count: 1, NewsTopics: []string{"headline one"}}, nil)
	assert.Contains(t, prompt, "headline one")
	assert.NotContains(t, prompt, "Season:")
}

func TestOpenAIBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"[{\"draft\":\"ok\"}]"}}]}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend("sk-test", "", option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
	text, err := b.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `[{"draft":"ok"}]`, text)
	assert.Equal(t, "gpt-4o-mini", b.Model())
}

func TestGeminiBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[{\"draft\":\"g\"}]"}]}}]}`))
	}))
	defer srv.Close()

	b := NewGeminiBackend("key", "")
	b.baseURL = srv.URL + "/"
	text, err := b.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `[{"draft":"g"}]`, text)
}
