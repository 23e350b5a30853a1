package predict

import (
	"math/rand"
	"sort"
)

const numFeatures = 2

// sample is one training example: (velocity, geo_altitude) -> delay.
type sample struct {
	x [numFeatures]float64
	y bool
}

// node is a binary decision tree node. Leaves carry the fraction of positive
// samples that reached them.
type node struct {
	leaf      bool
	prob      float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

func (n *node) predict(x [numFeatures]float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.prob
}

type treeParams struct {
	maxDepth       int // 0 means unlimited
	minSamplesLeaf int
}

// growTree builds a CART tree using gini impurity. At each node one feature
// is drawn at random; when it cannot split the node the remaining feature is
// tried before giving up.
func growTree(samples []sample, depth int, p treeParams, rng *rand.Rand) *node {
	pos := countPositive(samples)
	n := &node{leaf: true, prob: float64(pos) / float64(len(samples))}
	if pos == 0 || pos == len(samples) {
		return n
	}
	if p.maxDepth > 0 && depth >= p.maxDepth {
		return n
	}
	if len(samples) < 2*p.minSamplesLeaf {
		return n
	}

	for _, f := range rng.Perm(numFeatures) {
		threshold, ok := bestSplit(samples, f, p.minSamplesLeaf)
		if !ok {
			continue
		}
		var left, right []sample
		for _, s := range samples {
			if s.x[f] <= threshold {
				left = append(left, s)
			} else {
				right = append(right, s)
			}
		}
		return &node{
			feature:   f,
			threshold: threshold,
			left:      growTree(left, depth+1, p, rng),
			right:     growTree(right, depth+1, p, rng),
		}
	}
	return n
}

// bestSplit returns the midpoint threshold on feature f minimising the
// weighted gini impurity of the two children.
func bestSplit(samples []sample, f int, minLeaf int) (float64, bool) {
	sorted := make([]sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].x[f] < sorted[j].x[f] })

	total := len(sorted)
	totalPos := countPositive(sorted)
	leftPos := 0
	best := 2.0
	var threshold float64
	found := false

	for i := 0; i < total-1; i++ {
		if sorted[i].y {
			leftPos++
		}
		if sorted[i].x[f] == sorted[i+1].x[f] {
			continue
		}
		nl := i + 1
		nr := total - nl
		if nl < minLeaf || nr < minLeaf {
			continue
		}
		imp := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(totalPos-leftPos, nr)) / float64(total)
		if imp < best {
			best = imp
			threshold = (sorted[i].x[f] + sorted[i+1].x[f]) / 2
			found = true
		}
	}
	return threshold, found
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

func countPositive(samples []sample) int {
	n := 0
	for _, s := range samples {
		if s.y {
			n++
		}
	}
	return n
}
