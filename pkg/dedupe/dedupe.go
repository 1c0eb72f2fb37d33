// Package dedupe rejects exact and near-duplicate post drafts.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
)

const (
	DefaultThreshold = 0.95
	DefaultWindow    = 100
)

// Hash is the hex sha256 of the trimmed text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// PrefixRunes is how many leading runes two drafts may not share.
const PrefixRunes = 10

// Prefix returns the first PrefixRunes runes of text.
func Prefix(text string) string {
	r := []rune(text)
	if len(r) > PrefixRunes {
		r = r[:PrefixRunes]
	}
	return string(r)
}

// Similarity is the Jaccard index of the rune sets of a and b.
// Two empty strings have similarity 0.
func Similarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

type Result struct {
	Duplicate  bool
	Reason     domainPost.SkipReason
	MatchedID  string
	Similarity float64
}

// ExemptFunc decides whether a candidate skips the similarity check.
// The hash check always applies.
type ExemptFunc func(candidate domainPost.Post) bool

// ExemptProvisional exempts un-reviewed AI drafts and mock fallback output.
func ExemptProvisional(candidate domainPost.Post) bool {
	return candidate.Status == domainPost.StatusDraftAI || candidate.IsMock
}

type Engine struct {
	Threshold float64
	Window    int
	Exempt    ExemptFunc
}

func NewEngine(threshold float64, window int) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{Threshold: threshold, Window: window, Exempt: ExemptProvisional}
}

// Recent returns the last Window posts of an append-ordered list.
func (e *Engine) Recent(posts []domainPost.Post) []domainPost.Post {
	if len(posts) <= e.Window {
		return posts
	}
	return posts[len(posts)-e.Window:]
}

// Check tests candidate against the recent window of posts. Similarity is
// rejected only when strictly greater than the threshold.
func (e *Engine) Check(candidate domainPost.Post, posts []domainPost.Post) Result {
	recent := e.Recent(posts)
	hash := candidate.DedupeHash
	if hash == "" {
		hash = Hash(candidate.Draft)
	}

	for _, p := range recent {
		if p.ID != "" && p.ID == candidate.ID {
			continue
		}
		ph := p.DedupeHash
		if ph == "" {
			ph = Hash(p.Draft)
		}
		if ph == hash {
			return Result{Duplicate: true, Reason: domainPost.SkipDuplicateHash, MatchedID: p.ID, Similarity: 1}
		}
	}

	if e.Exempt != nil && e.Exempt(candidate) {
		return Result{}
	}

	text := strings.TrimSpace(candidate.Draft)
	for _, p := range recent {
		if p.ID != "" && p.ID == candidate.ID {
			continue
		}
		if sim := Similarity(text, strings.TrimSpace(p.Draft)); sim > e.Threshold {
			return Result{Duplicate: true, Reason: domainPost.SkipSimilarityTooHigh, MatchedID: p.ID, Similarity: sim}
		}
	}
	return Result{}
}
