package predict

import "math/rand"

// forest is a bagged ensemble of decision trees.
type forest struct {
	trees []*node
}

// fitForest grows n trees, each on a bootstrap resample of samples.
func fitForest(samples []sample, n int, p treeParams, rng *rand.Rand) *forest {
	f := &forest{trees: make([]*node, 0, n)}
	boot := make([]sample, len(samples))
	for i := 0; i < n; i++ {
		for j := range boot {
			boot[j] = samples[rng.Intn(len(samples))]
		}
		f.trees = append(f.trees, growTree(boot, 0, p, rng))
	}
	return f
}

// probability averages the positive-class probability over all trees.
func (f *forest) probability(x [numFeatures]float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees))
}

func (f *forest) predict(x [numFeatures]float64) bool {
	return f.probability(x) > 0.5
}
