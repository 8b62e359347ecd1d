package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeWord(word string) string {
	word = strings.ToLower(word)
	word = strings.Trim(word, " \n\t.,;:!?\"'()[]")
	return word
}

func Words(text string) []string {
	if text == "" {
		return nil
	}
	return whitespaceRegex.Split(strings.TrimSpace(text), -1)
}

func WordCount(text string) int {
	return len(Words(text))
}

const wordsPerMinute = 200

// ReadingTime estimates reading minutes at 200 wpm, never less than 1
// for non-empty content.
func ReadingTime(wordCount int) int {
	if wordCount == 0 {
		return 0
	}
	minutes := wordCount / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

var sentenceSplitRegex = regexp.MustCompile(`[.!?]+\s+`)

func Sentences(text string) []string {
	parts := sentenceSplitRegex.Split(text, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

const summarySentences = 3

// Summarize produces a leading-sentence extractive summary. Texts of
// three sentences or fewer are returned whole.
func Summarize(text string) string {
	sentences := Sentences(text)
	if len(sentences) <= summarySentences {
		return strings.TrimSpace(text)
	}
	summary := strings.Join(sentences[:summarySentences], ". ")
	if !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	return summary
}

// ValidLanguageTag reports whether code parses as a BCP 47 language tag
// ("en", "pt-BR", ...).
func ValidLanguageTag(code string) bool {
	if code == "" {
		return false
	}
	_, err := language.Parse(code)
	return err == nil
}

type QualitySignals struct {
	ContentLength  int
	HasTitle       bool
	HasAuthor      bool
	HasPublishDate bool
	SentenceCount  int
}

// QualityScore maps structural signals to a [0,1] heuristic: longer
// cleaned content, richer metadata and real sentence structure all push
// the score up from a 0.5 base.
func QualityScore(s QualitySignals) float64 {
	score := 0.5

	if s.ContentLength > 2500 {
		score += 0.2
	} else if s.ContentLength > 1000 {
		score += 0.1
	}

	if s.HasTitle {
		score += 0.1
	}
	if s.HasAuthor {
		score += 0.1
	}
	if s.HasPublishDate {
		score += 0.1
	}

	if s.SentenceCount > 5 {
		score += 0.1
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}
