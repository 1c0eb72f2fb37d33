package contentgen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")
	bareArray  = regexp.MustCompile(`(?s)\[.*\]`)
)

// parseDrafts extracts the JSON array from model output, fenced or bare.
func parseDrafts(text string) ([]domainGenerator.Draft, error) {
	var payload string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		payload = m[1]
	} else if m := bareArray.FindString(text); m != "" {
		payload = m
	} else {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var drafts []domainGenerator.Draft
	if err := json.Unmarshal([]byte(payload), &drafts); err != nil {
		return nil, fmt.Errorf("failed to decode drafts: %w", err)
	}
	out := drafts[:0]
	for _, d := range drafts {
		d.Draft = strings.TrimSpace(d.Draft)
		if d.Draft == "" {
			continue
		}
		if d.Hashtags == nil {
			d.Hashtags = []string{}
		}
		out = append(out, d)
	}
	return out, nil
}
