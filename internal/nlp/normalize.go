package nlp

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxLemmaPasses bounds the fixed-point search in lemma; dictionaries can
// contain short cycles.
const maxLemmaPasses = 4

var fallbackTokenRegex = regexp.MustCompile(`[A-Za-z0-9]+`)

type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

type Lemmatizer interface {
	Lemma(word string) string
}

// Normalizer turns raw user text into the canonical token string shared by
// the smalltalk matcher, the trainer and the classifier.
type Normalizer struct {
	tokenizer  Tokenizer
	lemmatizer Lemmatizer
	logger     *zap.Logger
}

// NewNormalizer wires the default Unicode word segmenter and English lemma
// dictionary. A dictionary that fails to load degrades to identity lemmas.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	logger = logger.Named("nlp")
	lem, err := NewDictionaryLemmatizer()
	if err != nil {
		logger.Warn("lemma dictionary unavailable, using identity lemmas", zap.Error(err))
		return New(SegmentTokenizer{}, IdentityLemmatizer{}, logger)
	}
	return New(SegmentTokenizer{}, lem, logger)
}

func New(tokenizer Tokenizer, lemmatizer Lemmatizer, logger *zap.Logger) *Normalizer {
	if tokenizer == nil {
		tokenizer = SegmentTokenizer{}
	}
	if lemmatizer == nil {
		lemmatizer = IdentityLemmatizer{}
	}
	return &Normalizer{tokenizer: tokenizer, lemmatizer: lemmatizer, logger: logger}
}

// Normalize never fails: tokenizer errors fall back to a regex split and
// lemma misses keep the original token.
func (n *Normalizer) Normalize(text string) string {
	return strings.Join(n.Tokens(text), " ")
}

func (n *Normalizer) Tokens(text string) []string {
	cleaned := stripNonAlnum(foldMarks(strings.ToLower(strings.TrimSpace(text))))

	tokens, err := n.tokenizer.Tokenize(cleaned)
	if err != nil {
		n.logger.Debug("tokenizer failed, using regex fallback", zap.Error(err))
		tokens = fallbackTokenRegex.FindAllString(strings.ToLower(cleaned), -1)
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		out = append(out, n.lemma(tok))
	}
	return out
}

// lemma follows the lemmatizer until it reaches a fixed point so that
// normalizing already-normalized text is a no-op.
func (n *Normalizer) lemma(tok string) string {
	cur := tok
	for i := 0; i < maxLemmaPasses; i++ {
		next := n.lemmatizer.Lemma(cur)
		if next == cur || !isPlainToken(next) {
			return cur
		}
		cur = next
	}
	return tok
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// stripNonAlnum replaces everything outside [a-z0-9\s] with a space so that
// punctuation never glues two tokens together.
func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isPlainToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
