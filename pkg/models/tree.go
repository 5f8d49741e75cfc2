package models

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// treeNode is a node of a regression tree stored in a flat slice. Leaves have
// left == -1.
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.left < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type treeBuilder struct {
	X           [][]float64
	y           []float64
	minLeaf     int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
	nodes       []treeNode
	features    []int
}

// buildTree grows a CART regression tree on the rows listed in idx, choosing
// at every node the split that most reduces squared error.
func buildTree(X [][]float64, y []float64, idx []int, minLeaf, maxDepth, maxFeatures int, rng *rand.Rand) *regressionTree {
	nFeatures := len(X[0])
	if maxFeatures <= 0 || maxFeatures > nFeatures {
		maxFeatures = nFeatures
	}
	if minLeaf < 1 {
		minLeaf = 1
	}

	b := &treeBuilder{
		X:           X,
		y:           y,
		minLeaf:     minLeaf,
		maxDepth:    maxDepth,
		maxFeatures: maxFeatures,
		rng:         rng,
		features:    make([]int, nFeatures),
	}
	for i := range b.features {
		b.features[i] = i
	}

	b.grow(idx, 0)
	return &regressionTree{nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{left: -1, right: -1, value: b.mean(idx)})

	if len(idx) < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) || b.pure(idx) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	// Partition idx in place around the threshold.
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if b.X[idx[lo]][feature] <= threshold {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}

	if lo == 0 || lo == len(idx) {
		return id
	}

	left := b.grow(idx[:lo], depth+1)
	right := b.grow(idx[lo:], depth+1)

	n := &b.nodes[id]
	n.feature = feature
	n.threshold = threshold
	n.left = left
	n.right = right
	return id
}

func (b *treeBuilder) mean(idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit sweeps each candidate feature in sorted order and maximises
// sumL²/nL + sumR²/nR, which is equivalent to minimising the children's
// total squared error.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	candidates := b.features
	if b.maxFeatures < len(b.features) {
		b.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		candidates = candidates[:b.maxFeatures]
	}

	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	n := float64(len(idx))
	baseline := total * total / n

	sorted := make([]int, len(idx))
	bestScore := baseline
	bestFeature, bestThreshold, found := -1, 0.0, false

	for _, f := range candidates {
		copy(sorted, idx)
		slices.SortFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.X[a][f], b.X[c][f])
		})

		var sumL float64
		for k := 0; k < len(sorted)-1; k++ {
			sumL += b.y[sorted[k]]
			nL := k + 1
			nR := len(sorted) - nL
			if nL < b.minLeaf {
				continue
			}
			if nR < b.minLeaf {
				break
			}

			v, next := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if v == next {
				continue
			}

			sumR := total - sumL
			score := sumL*sumL/float64(nL) + sumR*sumR/float64(nR)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold >= next {
					bestThreshold = v
				}
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}
