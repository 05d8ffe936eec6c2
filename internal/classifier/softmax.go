package classifier

import "math"

// softmaxRegression is a multinomial logistic regression over sparse
// TF-IDF rows.
type softmaxRegression struct {
	Weights [][]float64 `json:"weights"` // [class][feature]
	Bias    []float64   `json:"bias"`
}

type fitParams struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// fitSoftmax runs deterministic full-batch gradient descent on the mean
// cross-entropy plus an L2 penalty.
func fitSoftmax(xs []SparseVec, ys []int, numClasses, numFeatures int, p fitParams) *softmaxRegression {
	m := &softmaxRegression{
		Weights: make([][]float64, numClasses),
		Bias:    make([]float64, numClasses),
	}
	for k := range m.Weights {
		m.Weights[k] = make([]float64, numFeatures)
	}
	if len(xs) == 0 {
		return m
	}

	n := float64(len(xs))
	gradW := make([][]float64, numClasses)
	for k := range gradW {
		gradW[k] = make([]float64, numFeatures)
	}
	gradB := make([]float64, numClasses)
	probs := make([]float64, numClasses)

	for epoch := 0; epoch < p.Epochs; epoch++ {
		for k := range gradW {
			clear(gradW[k])
		}
		clear(gradB)

		for i, x := range xs {
			m.probabilities(x, probs)
			for k := 0; k < numClasses; k++ {
				d := probs[k]
				if k == ys[i] {
					d -= 1
				}
				gradB[k] += d
				for _, f := range x {
					gradW[k][f.Index] += d * f.Weight
				}
			}
		}

		for k := 0; k < numClasses; k++ {
			for j := range m.Weights[k] {
				m.Weights[k][j] -= p.LearningRate * (gradW[k][j]/n + p.L2*m.Weights[k][j])
			}
			m.Bias[k] -= p.LearningRate * (gradB[k]/n + p.L2*m.Bias[k])
		}
	}
	return m
}

// probabilities writes softmax(Wx+b) into out.
func (m *softmaxRegression) probabilities(x SparseVec, out []float64) {
	maxLogit := math.Inf(-1)
	for k := range m.Bias {
		z := m.Bias[k]
		for _, f := range x {
			if f.Index < len(m.Weights[k]) {
				z += m.Weights[k][f.Index] * f.Weight
			}
		}
		out[k] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	var sum float64
	for k := range out {
		out[k] = math.Exp(out[k] - maxLogit)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
}
