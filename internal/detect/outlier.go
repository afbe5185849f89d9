package detect

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Isolation forest parameters.
const (
	forestTrees          = 100
	forestSampleSize     = 256
	outlierContamination = 0.1
	eulerGamma           = 0.5772156649
)

// OutlierModel is an isolation forest trained online on a rolling buffer of
// recent feature vectors. It is rebuilt once the buffer holds MinSamples
// vectors and again every RefitEvery new vectors. State lives only in memory,
// so results differ across restarts.
type OutlierModel struct {
	mu sync.Mutex

	size       int
	minSamples int
	refitEvery int

	buf      [][]float64 // ring buffer
	next     int
	sinceFit int

	forest *isolationForest
	rng    *rand.Rand
}

// NewOutlierModel creates an empty model. Zero config values fall back to
// 1000 / 50 / 100.
func NewOutlierModel(cfg domain.AnomalyConfig, seed uint64) *OutlierModel {
	m := &OutlierModel{
		size:       cfg.OutlierBuffer,
		minSamples: cfg.OutlierMinSample,
		refitEvery: cfg.OutlierRefit,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	if m.size <= 0 {
		m.size = 1000
	}
	if m.minSamples <= 0 {
		m.minSamples = 50
	}
	if m.refitEvery <= 0 {
		m.refitEvery = 100
	}
	return m
}

// Len returns the number of buffered vectors.
func (m *OutlierModel) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Fitted reports whether a forest has been built.
func (m *OutlierModel) Fitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forest != nil
}

// IsOutlier scores x against the current forest. fitted is false until the
// buffer has reached the minimum sample count.
func (m *OutlierModel) IsOutlier(x []float64) (outlier, fitted bool) {
	m.mu.Lock()
	f := m.forest
	m.mu.Unlock()
	if f == nil {
		return false, false
	}
	return f.score(x) > f.threshold, true
}

// Observe appends x to the buffer, evicting the oldest vector when full, and
// refits the forest when due.
func (m *OutlierModel) Observe(x []float64) {
	v := append([]float64(nil), x...)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buf) < m.size {
		m.buf = append(m.buf, v)
	} else {
		m.buf[m.next] = v
		m.next = (m.next + 1) % m.size
	}
	m.sinceFit++

	if len(m.buf) < m.minSamples {
		return
	}
	if m.forest == nil || m.sinceFit >= m.refitEvery {
		m.forest = fitForest(m.buf, m.rng)
		m.sinceFit = 0
	}
}

type isolationForest struct {
	trees     []*itreeNode
	psi       int
	threshold float64
}

type itreeNode struct {
	feature     int
	split       float64
	left, right *itreeNode
	size        int // leaf only
}

func fitForest(data [][]float64, rng *rand.Rand) *isolationForest {
	n := len(data)
	psi := min(forestSampleSize, n)
	limit := int(math.Ceil(math.Log2(float64(psi))))

	f := &isolationForest{psi: psi, trees: make([]*itreeNode, 0, forestTrees)}
	sample := make([][]float64, psi)
	for range forestTrees {
		for i, idx := range rng.Perm(n)[:psi] {
			sample[i] = data[idx]
		}
		f.trees = append(f.trees, buildTree(append([][]float64(nil), sample...), 0, limit, rng))
	}

	scores := make([]float64, n)
	for i, x := range data {
		scores[i] = f.score(x)
	}
	sort.Float64s(scores)
	idx := int(math.Ceil((1-outlierContamination)*float64(n))) - 1
	idx = max(0, min(idx, n-1))
	f.threshold = scores[idx]
	return f
}

func buildTree(data [][]float64, depth, limit int, rng *rand.Rand) *itreeNode {
	if depth >= limit || len(data) <= 1 {
		return &itreeNode{size: len(data)}
	}

	// Only features that vary can split.
	dims := len(data[0])
	var candidates []int
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	for d := range dims {
		lo[d], hi[d] = data[0][d], data[0][d]
		for _, x := range data[1:] {
			lo[d] = math.Min(lo[d], x[d])
			hi[d] = math.Max(hi[d], x[d])
		}
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &itreeNode{size: len(data)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right [][]float64
	for _, x := range data {
		if x[feature] < split {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &itreeNode{size: len(data)}
	}

	return &itreeNode{
		feature: feature,
		split:   split,
		left:    buildTree(left, depth+1, limit, rng),
		right:   buildTree(right, depth+1, limit, rng),
	}
}

// score is the anomaly score in (0, 1]; higher is more anomalous.
func (f *isolationForest) score(x []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))
	c := averagePath(f.psi)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

func pathLength(x []float64, n *itreeNode, depth int) float64 {
	for n.left != nil {
		if n.feature < len(x) && x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath is the mean unsuccessful search length in a BST of n nodes.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
