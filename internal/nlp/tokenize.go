package nlp

import (
	"fmt"

	"bankbot/internal/domain"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/clipperhouse/uax29/v2/words"
)

// SegmentTokenizer splits text on Unicode (UAX #29) word boundaries and keeps
// only alphanumeric segments.
type SegmentTokenizer struct{}

func (SegmentTokenizer) Tokenize(text string) (tokens []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			tokens = nil
			err = fmt.Errorf("%w: %v", domain.ErrTokenizerUnavailable, r)
		}
	}()

	segments := words.FromString(text)
	for segments.Next() {
		tok := segments.Value()
		if isPlainToken(tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// RegexTokenizer is the resource-free fallback.
type RegexTokenizer struct{}

func (RegexTokenizer) Tokenize(text string) ([]string, error) {
	return fallbackTokenRegex.FindAllString(text, -1), nil
}

type IdentityLemmatizer struct{}

func (IdentityLemmatizer) Lemma(word string) string { return word }

type DictionaryLemmatizer struct {
	lem *golem.Lemmatizer
}

func NewDictionaryLemmatizer() (*DictionaryLemmatizer, error) {
	lem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemma dictionary: %w", err)
	}
	return &DictionaryLemmatizer{lem: lem}, nil
}

func (d *DictionaryLemmatizer) Lemma(word string) string {
	return d.lem.Lemma(word)
}
