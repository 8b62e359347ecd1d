package textutil

import (
	"sort"

	"github.com/antzucaro/matchr"
)

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "were": true, "they": true, "their": true, "them": true,
	"will": true, "would": true, "could": true, "should": true, "about": true,
	"which": true, "when": true, "what": true, "where": true, "there": true,
	"here": true, "into": true, "also": true, "more": true, "most": true,
	"some": true, "such": true, "than": true, "then": true, "these": true,
	"those": true, "only": true, "other": true, "over": true, "after": true,
	"before": true, "because": true, "between": true, "while": true,
	"being": true, "doing": true, "does": true, "just": true, "like": true,
	"make": true, "made": true, "many": true, "much": true, "very": true,
	"your": true, "yours": true, "it's": true, "its": true,
}

const (
	maxKeywords          = 10
	minKeywordLength     = 4
	keywordDupSimilarity = 0.92
)

// Keywords extracts the most frequent significant words. Near-duplicate
// forms ("scraper"/"scrapers") are merged into the more frequent spelling
// using Jaro-Winkler similarity.
func Keywords(text string) []string {
	freq := map[string]int{}
	order := map[string]int{}
	for i, raw := range Words(text) {
		word := NormalizeWord(raw)
		if len(word) < minKeywordLength || stopwords[word] {
			continue
		}
		if _, seen := freq[word]; !seen {
			order[word] = i
		}
		freq[word]++
	}

	candidates := make([]string, 0, len(freq))
	for word := range freq {
		candidates = append(candidates, word)
	}
	// frequency desc, first appearance asc for stability
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		return order[a] < order[b]
	})

	var keywords []string
	for _, word := range candidates {
		dup := false
		for _, kept := range keywords {
			if matchr.JaroWinkler(word, kept, false) > keywordDupSimilarity {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
