package contentgen

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/sirupsen/logrus"
)

const DefaultMaxAttempts = 3

// Generator implements IContentGenerator over a model Backend. With no
// backend, or when every attempt fails, it returns mock drafts.
type Generator struct {
	backend     Backend
	maxAttempts int
	ngWords     []string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(backend Backend, maxAttempts int, ngWords []string, rng *rand.Rand) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{backend: backend, maxAttempts: maxAttempts, ngWords: ngWords, rng: rng}
}

func (g *Generator) Generate(ctx context.Context, req domainGenerator.Request) ([]domainGenerator.Draft, error) {
	if req.Count <= 0 {
		req.Count = 3
	}
	if g.backend == nil {
		return g.mock(req, "API_KEY_MISSING"), nil
	}

	var drafts []domainGenerator.Draft
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.mu.Lock()
		prompt := buildPrompt(req, pickTopics(g.rng))
		g.mu.Unlock()

		text, err := g.backend.Complete(ctx, prompt)
		var raw []domainGenerator.Draft
		if err == nil {
			raw, err = parseDrafts(text)
		}
		if err != nil {
			logrus.WithError(err).Warnf("[GENERATE] attempt %d/%d failed", attempt, g.maxAttempts)
			if attempt == g.maxAttempts {
				return g.mock(req, err.Error()), nil
			}
			continue
		}

		valid := uniqueByPrefix(raw, req.ProhibitedPrefixes)
		if len(valid) == len(raw) {
			drafts = valid
			break
		}
		if attempt == g.maxAttempts {
			logrus.Warnf("[GENERATE] only %d unique drafts after %d attempts", len(valid), g.maxAttempts)
			drafts = valid
		}
	}

	ngWords := append(append([]string(nil), g.ngWords...), req.NGWords...)
	for i := range drafts {
		drafts[i].Draft = maskNGWords(drafts[i].Draft, ngWords)
		drafts[i].AIModel = g.backend.Model()
	}
	if len(drafts) > req.Count {
		drafts = drafts[:req.Count]
	}
	return drafts, nil
}

func (g *Generator) mock(req domainGenerator.Request, reason string) []domainGenerator.Draft {
	g.mu.Lock()
	defer g.mu.Unlock()
	return mockDrafts(req, g.rng, reason)
}

// uniqueByPrefix drops drafts whose first runes collide with a prohibited
// prefix in either direction.
func uniqueByPrefix(drafts []domainGenerator.Draft, prohibited []string) []domainGenerator.Draft {
	out := make([]domainGenerator.Draft, 0, len(drafts))
	for _, d := range drafts {
		prefix := dedupe.Prefix(d.Draft)
		dup := false
		for _, p := range prohibited {
			if p == "" {
				continue
			}
			if strings.HasPrefix(p, prefix) || strings.HasPrefix(prefix, p) {
				dup = true
				break
			}
		}
		if dup {
			logrus.Warnf("[GENERATE] duplicate prefix [%s], retrying", prefix)
			continue
		}
		out = append(out, d)
	}
	return out
}

func maskNGWords(text string, words []string) string {
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || !strings.Contains(text, w) {
			continue
		}
		logrus.Warnf("[GENERATE] NG word [%s] masked", w)
		text = strings.ReplaceAll(text, w, strings.Repeat("*", len([]rune(w))))
	}
	return text
}
