package features

import (
	"math"
	"strings"
	"unicode"
)

// SentimentScorer produces a compound polarity score in [-1, 1] for a text.
type SentimentScorer interface {
	Score(text string) float64
}

const (
	negationScalar   = -0.74
	boosterIncrement = 0.293
	exclaimIncrement = 0.292
	maxExclaims      = 4
	lookback         = 3
	normalizeAlpha   = 15.0
	beforeButWeight  = 0.5
	afterButWeight   = 1.5
)

// LexiconSentiment is a valence-lexicon scorer modelled on the rule set of
// VADER: token valences, negation and booster look-back, "but" contrast
// weighting and exclamation emphasis, normalised into a compound score.
type LexiconSentiment struct {
	valence   map[string]float64
	emoji     []emojiValence
	boosters  map[string]float64
	negations map[string]bool
}

// NewLexiconSentiment returns a scorer using the built-in English valences.
func NewLexiconSentiment() *LexiconSentiment {
	return &LexiconSentiment{
		valence:   defaultValence,
		emoji:     defaultEmojiValence,
		boosters:  defaultBoosters,
		negations: defaultNegations,
	}
}

// Score returns the compound sentiment of text. Empty text scores 0.
func (s *LexiconSentiment) Score(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.0
	}

	lowered := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	tokens := tokenize(lowered)

	butIdx := -1
	for i, tok := range tokens {
		if tok == "but" {
			butIdx = i
		}
	}

	var sum float64
	for i, tok := range tokens {
		v, ok := s.valence[tok]
		if !ok {
			continue
		}
		for back := 1; back <= lookback && i-back >= 0; back++ {
			prev := tokens[i-back]
			if inc, ok := s.boosters[prev]; ok {
				scaled := inc * (1.0 - 0.05*float64(back-1))
				if v < 0 {
					scaled = -scaled
				}
				v += scaled
			}
		}
		for back := 1; back <= lookback && i-back >= 0; back++ {
			if s.negations[tokens[i-back]] {
				v *= negationScalar
				break
			}
		}
		if butIdx >= 0 {
			switch {
			case i < butIdx:
				v *= beforeButWeight
			case i > butIdx:
				v *= afterButWeight
			}
		}
		sum += v
	}

	for _, e := range s.emoji {
		if n := strings.Count(lowered, e.glyph); n > 0 {
			sum += e.valence * float64(n)
		}
	}

	if sum != 0 {
		bangs := strings.Count(text, "!")
		if bangs > maxExclaims {
			bangs = maxExclaims
		}
		emphasis := float64(bangs) * exclaimIncrement
		if sum > 0 {
			sum += emphasis
		} else {
			sum -= emphasis
		}
	}

	return normalize(sum)
}

func normalize(score float64) float64 {
	if score == 0 {
		return 0
	}
	norm := score / math.Sqrt(score*score+normalizeAlpha)
	if norm < -1 {
		return -1
	}
	if norm > 1 {
		return 1
	}
	return norm
}

func tokenize(lowered string) []string {
	fields := strings.Fields(lowered)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var defaultValence = map[string]float64{
	"love": 3.2, "loves": 2.7, "loved": 2.9, "loving": 2.9, "lovely": 2.8,
	"adore": 2.9, "good": 1.9, "great": 3.1, "happy": 2.7, "glad": 2.0,
	"fun": 2.3, "nice": 1.8, "amazing": 2.8, "awesome": 3.1, "wonderful": 2.7,
	"beautiful": 2.9, "sweet": 2.0, "cute": 2.0, "excited": 2.2, "thanks": 1.9,
	"thank": 1.5, "yes": 1.7, "yay": 2.4, "haha": 2.0, "lol": 1.8,
	"fine": 0.8, "okay": 0.9, "perfect": 2.7, "best": 3.2, "enjoy": 2.2,
	"enjoyed": 2.3, "care": 2.2, "hug": 2.1, "hugs": 2.1, "kiss": 1.8,
	"smile": 1.5, "proud": 2.1, "safe": 1.9, "fantastic": 2.6, "cool": 1.3,
	"hate": -2.7, "hated": -3.2, "sad": -2.1, "angry": -2.3, "mad": -2.2,
	"upset": -1.6, "annoyed": -1.6, "annoying": -1.9, "tired": -1.9, "hurt": -2.4,
	"hurts": -2.4, "sorry": -0.3, "bad": -2.5, "terrible": -2.5, "awful": -2.0,
	"worst": -3.1, "cry": -2.1, "crying": -2.1, "lonely": -2.0, "ignored": -1.9,
	"disappointed": -1.9, "stupid": -2.4, "wrong": -2.1, "ugh": -1.8, "stress": -1.8,
	"stressed": -1.4, "worried": -1.2, "scared": -2.2, "afraid": -2.0, "alone": -1.0,
	"fight": -1.6, "problem": -1.7, "miss": -0.6, "leave": -0.4, "done": -0.2,
	"boring": -1.3, "sick": -1.8, "pain": -2.3, "jealous": -2.0, "confused": -1.3,
}

type emojiValence struct {
	glyph   string
	valence float64
}

// defaultEmojiValence is summed in slice order so scores are bit-identical
// across runs.
var defaultEmojiValence = []emojiValence{
	{"❤️", 3.0}, {"😘", 2.7}, {"😍", 2.9}, {"🥰", 3.0}, {"😊", 2.2}, {"😂", 1.7},
	{"😢", -2.0}, {"😭", -2.2}, {"😡", -2.6}, {"💔", -2.8}, {"🙄", -1.3},
}

var defaultBoosters = map[string]float64{
	"very": boosterIncrement, "really": boosterIncrement, "so": boosterIncrement,
	"extremely": boosterIncrement, "totally": boosterIncrement, "super": boosterIncrement,
	"incredibly": boosterIncrement, "absolutely": boosterIncrement, "completely": boosterIncrement,
	"kinda": -boosterIncrement, "slightly": -boosterIncrement, "somewhat": -boosterIncrement,
	"barely": -boosterIncrement, "hardly": -boosterIncrement,
}

var defaultNegations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "dont": true,
	"doesn't": true, "didn't": true, "isn't": true, "aren't": true, "wasn't": true,
	"can't": true, "cant": true, "cannot": true, "won't": true, "wouldn't": true,
	"shouldn't": true, "nothing": true, "nobody": true, "none": true, "neither": true,
	"nor": true, "without": true,
}
