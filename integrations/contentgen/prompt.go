package contentgen

import (
	"fmt"
	"math/rand/v2"
	"strings"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
)

var topicCandidates = []string{
	"目に見えない空気の汚れへの気づき",
	"3Dプリンター使用時の喉の違和感や対策",
	"花粉シーズンの家の中と外のギャップ",
	"小型空気清浄機を置く場所の工夫（卓上、寝室、車中）",
	"子供やペットの視点での空気質へのアプローチ",
	"空気のニオイと感情の結びつき",
	"フィルターがないことのメリット（経済性、ゴミ出し）",
	"朝起きた時のスッキリ感の正体",
	"VOCs（揮発性有機化合物）という言葉を噛み砕く",
	"換気が難しい真冬・真夏の室内環境",
}

const topicsPerPrompt = 4

func pickTopics(rng *rand.Rand) []string {
	topics := append([]string(nil), topicCandidates...)
	rng.Shuffle(len(topics), func(i, j int) { topics[i], topics[j] = topics[j], topics[i] })
	return topics[:topicsPerPrompt]
}

func buildPrompt(req domainGenerator.Request, topics []string) string {
	trend := "Season: " + req.Season
	if len(req.NewsTopics) > 0 {
		trend = strings.Join(req.NewsTopics, "\n")
	}
	memo := strings.TrimSpace(req.MemoContent)
	if memo == "" {
		memo = "General air quality/Researcher discovery."
	}

	var recent strings.Builder
	for _, p := range req.RecentPosts {
		recent.WriteString("- ")
		recent.WriteString(firstRunes(p.Draft, 40))
		recent.WriteString("\n")
	}
	if recent.Len() == 0 {
		recent.WriteString("(none)\n")
	}

	return fmt.Sprintf(`GENERATE EXACTLY %[1]d DRAFTS.
You are an individual researcher who posts unique observations about air and daily life.
Every post must be a fresh discovery. Never reuse an opening, a structure or a theme.

Inspiration topics: %[2]s

Current news or season:
%[3]s

Recently posted (do not repeat these):
%[4]s
Rules:
- No product names, no hashtags, no sales tone.
- At most 1 emoji per post.
- 90-130 Japanese characters.
- Mention the profile link in about half of the posts (has_cta: true).
- Vary the hook: a question, an exclamation, a quiet realization, a time of day.

User memo (priority):
%[5]s

Return only a JSON array with exactly %[1]d objects:
[{"draft": "...", "has_cta": true, "post_type": "気づき型|雑談型|発見型", "lp_priority": "low", "hashtags": []}]
`, req.Count, strings.Join(topics, ", "), trend, recent.String(), memo)
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
