package classifier

import (
	"math"
	"sort"
	"strings"
)

// Feature is one non-zero entry of a sparse row.
type Feature struct {
	Index  int
	Weight float64
}

// SparseVec holds non-zero features in ascending index order, so sums over
// a row always run in the same order.
type SparseVec []Feature

// Vectorizer is a TF-IDF encoder over unigrams and bigrams of already
// normalized text. Rows are L2-normalized.
type Vectorizer struct {
	Vocab map[string]int `json:"vocab"`
	IDF   []float64      `json:"idf"`
}

// ngrams returns unigrams followed by bigrams of a whitespace-tokenized string.
func ngrams(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(tokens)-1)
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// FitVectorizer builds the vocabulary and smoothed IDF weights from docs.
// Vocabulary indices follow sorted term order so fitting is deterministic.
func FitVectorizer(docs []string) *Vectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range ngrams(doc) {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return &Vectorizer{Vocab: vocab, IDF: idf}
}

func (v *Vectorizer) Transform(text string) SparseVec {
	tf := make(map[int]int)
	for _, term := range ngrams(text) {
		if idx, ok := v.Vocab[term]; ok {
			tf[idx]++
		}
	}
	indices := make([]int, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	vec := make(SparseVec, len(indices))
	var norm float64
	for i, idx := range indices {
		w := float64(tf[idx]) * v.IDF[idx]
		vec[i] = Feature{Index: idx, Weight: w}
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i].Weight /= norm
		}
	}
	return vec
}

func (v *Vectorizer) Size() int {
	return len(v.IDF)
}

// CosineSim of two sparse vectors; zero when either is empty.
func CosineSim(a, b SparseVec) float64 {
	var dot, normA, normB float64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i].Index < b[j].Index:
			i++
		case a[i].Index > b[j].Index:
			j++
		default:
			dot += a[i].Weight * b[j].Weight
			i++
			j++
		}
	}
	for _, f := range a {
		normA += f.Weight * f.Weight
	}
	for _, f := range b {
		normB += f.Weight * f.Weight
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
