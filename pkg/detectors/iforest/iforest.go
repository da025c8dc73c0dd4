// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotTrained is returned when scoring before Fit.
var ErrNotTrained = errors.New("model not trained")

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	threshold     float64
	workers       int
	rng           *rand.Rand

	// Trained model
	trees   []*iTree
	trained bool

	// Statistics from training
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand sets the random source. Trees draw their own seeds from it, so the
// result does not depend on how tree building is scheduled.
func WithRand(rng *rand.Rand) Option {
	return func(f *IsolationForest) {
		f.rng = rng
	}
}

// WithWorkers bounds the number of trees built concurrently; zero or less
// uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *IsolationForest) {
		f.workers = n
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		threshold:     0.5,
		workers:       runtime.GOMAXPROCS(0),
		rng:           rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.nTrees <= 0 {
		f.nTrees = 100
	}
	if f.sampleSize <= 0 {
		f.sampleSize = 256
	}
	if f.workers <= 0 {
		f.workers = runtime.GOMAXPROCS(0)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(ctx context.Context, data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("training data has no features")
	}

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	seeds := make([]int64, f.nTrees)
	for i := range seeds {
		seeds[i] = f.rng.Int63()
	}

	trees := make([]*iTree, f.nTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := range trees {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := &treeBuilder{
				rng:       rand.New(rand.NewSource(seeds[i])),
				nFeatures: nFeatures,
				maxDepth:  maxDepth,
			}
			// Sample without replacement
			indices := b.rng.Perm(nSamples)[:sampleSize]
			sample := make([][]float64, sampleSize)
			for j, idx := range indices {
				sample[j] = data[idx]
			}
			trees[i] = &iTree{root: b.buildNode(sample, 0)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.trees = trees
	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	if f.avgPathLength <= 0 {
		f.avgPathLength = 1
	}
	f.trained = true

	// Set threshold based on contamination
	if f.contamination > 0 {
		scores := f.predict(data)
		f.threshold = percentile(scores, 100*(1-f.contamination))
	}

	return nil
}

type treeBuilder struct {
	rng       *rand.Rand
	nFeatures int
	maxDepth  int
}

func (b *treeBuilder) buildNode(data [][]float64, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= b.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := b.rng.Intn(b.nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + b.rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}
	if len(leftData) == 0 || len(rightData) == 0 {
		return &node{size: n}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         b.buildNode(leftData, depth+1),
		right:        b.buildNode(rightData, depth+1),
	}
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}

	return f.predict(data), nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.predictOne(sample)
	}
	return scores
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}

	return f.predictOne(sample), nil
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ~ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// percentile returns the p-th percentile of data, interpolating linearly
// between the closest ranks.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(100, p))
	pos := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
