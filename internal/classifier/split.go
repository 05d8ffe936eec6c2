package classifier

import (
	"math"
	"math/rand/v2"
	"sort"
)

// stratifiedSplit partitions example indices into train and eval sets so
// each label keeps roughly its share in both. Every label keeps at least one
// training example; labels with a single example never reach eval.
func stratifiedSplit(labels []string, testFraction float64, seed uint64) (train, eval []int) {
	byLabel := make(map[string][]int)
	var order []string
	for i, l := range labels {
		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], i)
	}
	sort.Strings(order)

	rng := rand.New(rand.NewPCG(seed, seed))

	target := int(math.Ceil(float64(len(labels)) * testFraction))
	quota := make(map[string]int, len(order))
	type remainder struct {
		label string
		frac  float64
	}
	var rems []remainder
	assigned := 0
	for _, l := range order {
		exact := float64(len(byLabel[l])) * testFraction
		q := int(math.Floor(exact))
		if limit := len(byLabel[l]) - 1; q > limit {
			q = limit
		}
		quota[l] = q
		assigned += q
		rems = append(rems, remainder{label: l, frac: exact - float64(q)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for _, r := range rems {
		if assigned >= target {
			break
		}
		if quota[r.label] < len(byLabel[r.label])-1 {
			quota[r.label]++
			assigned++
		}
	}

	for _, l := range order {
		idx := append([]int(nil), byLabel[l]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		eval = append(eval, idx[:quota[l]]...)
		train = append(train, idx[quota[l]:]...)
	}
	sort.Ints(train)
	sort.Ints(eval)
	return train, eval
}
