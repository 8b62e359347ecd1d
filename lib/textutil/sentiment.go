package textutil

type Sentiment struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "best": true,
	"amazing": true, "wonderful": true, "positive": true, "success": true,
	"successful": true, "win": true, "winning": true, "improve": true,
	"improved": true, "improvement": true, "benefit": true, "beneficial": true,
	"growth": true, "strong": true, "gain": true, "gains": true,
	"love": true, "happy": true, "impressive": true, "innovative": true,
	"breakthrough": true, "progress": true, "efficient": true, "reliable": true,
	"easy": true, "better": true, "boost": true, "record": true,
}

var negativeWords = map[string]bool{
	"bad": true, "worst": true, "terrible": true, "awful": true,
	"negative": true, "fail": true, "failed": true, "failure": true,
	"loss": true, "losses": true, "decline": true, "declining": true,
	"weak": true, "poor": true, "problem": true, "problems": true,
	"crisis": true, "risk": true, "risks": true, "threat": true,
	"hate": true, "angry": true, "broken": true, "bug": true,
	"crash": true, "drop": true, "worse": true, "difficult": true,
	"danger": true, "dangerous": true, "concern": true, "concerns": true,
}

// thresholds matching the polarity cutoffs the label contract expects
const sentimentLabelThreshold = 0.1

// AnalyzeSentiment scores polarity as (pos-neg)/(pos+neg) over a small
// lexicon. Confidence is the share of tokens the lexicon matched, so
// short or off-lexicon text yields a low-confidence neutral.
func AnalyzeSentiment(text string) Sentiment {
	total := 0
	positive := 0
	negative := 0
	for _, raw := range Words(text) {
		word := NormalizeWord(raw)
		if word == "" {
			continue
		}
		total++
		if positiveWords[word] {
			positive++
		} else if negativeWords[word] {
			negative++
		}
	}

	matched := positive + negative
	if total == 0 || matched == 0 {
		return Sentiment{Label: SentimentNeutral}
	}

	score := float64(positive-negative) / float64(matched)
	label := SentimentNeutral
	if score > sentimentLabelThreshold {
		label = SentimentPositive
	} else if score < -sentimentLabelThreshold {
		label = SentimentNegative
	}

	return Sentiment{
		Label:      label,
		Score:      score,
		Confidence: float64(matched) / float64(total),
	}
}
