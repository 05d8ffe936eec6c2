package curation

import (
	"sort"

	"bankbot/internal/classifier"
	"bankbot/internal/domain"
)

// exampleIndex finds the training examples most similar to a question.
type exampleIndex struct {
	vec   *classifier.Vectorizer
	docs  []classifier.SparseVec
	items []domain.TrainingExample
}

func buildExampleIndex(items []domain.TrainingExample) *exampleIndex {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	idx := &exampleIndex{vec: classifier.FitVectorizer(texts), items: items}
	idx.docs = make([]classifier.SparseVec, len(items))
	for i, text := range texts {
		idx.docs[i] = idx.vec.Transform(text)
	}
	return idx
}

type scoredExample struct {
	domain.TrainingExample
	Score float64
}

// topK returns up to k examples with positive similarity, best first.
func (idx *exampleIndex) topK(query string, k int) []scoredExample {
	if len(idx.items) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.vec.Transform(query)
	if len(qvec) == 0 {
		return nil
	}
	var results []scoredExample
	for i, dvec := range idx.docs {
		if sim := classifier.CosineSim(qvec, dvec); sim > 0 {
			results = append(results, scoredExample{TrainingExample: idx.items[i], Score: sim})
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
