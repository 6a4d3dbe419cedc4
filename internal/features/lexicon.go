package features

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the phrase sets used to tag messages. Matching is a
// case-insensitive substring check, so entries may be words or phrases.
type Lexicon struct {
	Affection  []string `yaml:"affection"`
	Avoidance  []string `yaml:"avoidance"`
	Hedge      []string `yaml:"hedge"`
	Boundary   []string `yaml:"boundary"`
	FutureTalk []string `yaml:"future_talk"`
}

// DefaultLexicon returns the built-in English marker sets.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Affection:  []string{"love", "miss you", "babe", "baby", "xo", "❤️", "😘", "😍", "sweetheart"},
		Avoidance:  []string{"busy", "later", "idk", "i don't know", "can't", "cannot", "maybe", "not sure", "rain check", "not ready"},
		Hedge:      []string{"maybe", "kinda", "kind of", "unsure", "perhaps", "possibly"},
		Boundary:   []string{"i can't", "not ready", "too much", "need space", "can't do this", "i need time"},
		FutureTalk: []string{"let's", "we should", "next week", "sometime", "plan", "trip", "dinner", "see you"},
	}
}

// LoadLexicon reads a YAML lexicon file. Categories missing from the file
// keep their default phrases.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}

	var fromFile Lexicon
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := DefaultLexicon()
	if len(fromFile.Affection) > 0 {
		lex.Affection = fromFile.Affection
	}
	if len(fromFile.Avoidance) > 0 {
		lex.Avoidance = fromFile.Avoidance
	}
	if len(fromFile.Hedge) > 0 {
		lex.Hedge = fromFile.Hedge
	}
	if len(fromFile.Boundary) > 0 {
		lex.Boundary = fromFile.Boundary
	}
	if len(fromFile.FutureTalk) > 0 {
		lex.FutureTalk = fromFile.FutureTalk
	}
	return lex.normalized(), nil
}

// normalized lowercases and trims every phrase, dropping blanks.
func (l Lexicon) normalized() Lexicon {
	return Lexicon{
		Affection:  lowerAll(l.Affection),
		Avoidance:  lowerAll(l.Avoidance),
		Hedge:      lowerAll(l.Hedge),
		Boundary:   lowerAll(l.Boundary),
		FutureTalk: lowerAll(l.FutureTalk),
	}
}

func lowerAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
