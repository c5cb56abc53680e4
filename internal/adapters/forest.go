package adapters

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/blagoySimandov/trainer/internal/models"
)

const (
	maxEstimators = 1000
	maxTreeDepth  = 64
)

type treeNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type forestState struct {
	Width int          `json:"width"`
	Trees [][]treeNode `json:"trees"`
}

type forestAdapter struct {
	schema
}

func newRandomForest() *forestAdapter {
	return &forestAdapter{schema{
		modelType: models.ModelTypeRandomForest,
		params: []paramSpec{
			{name: "n_estimators", kind: kindInt, def: 100, check: between(1, maxEstimators)},
			// 0 grows trees until leaves are pure or too small to split.
			{name: "max_depth", kind: kindInt, def: 0, check: between(0, maxTreeDepth)},
			{name: "min_samples_split", kind: kindInt, def: 2, check: atLeast(2)},
			{name: "min_samples_leaf", kind: kindInt, def: 1, check: atLeast(1)},
			{name: "random_state", kind: kindInt, def: 42},
		},
	}}
}

func (a *forestAdapter) Task() models.Task { return models.TaskRegression }

func (a *forestAdapter) PredictParams() []string { return nil }

func (a *forestAdapter) Fit(X [][]float64, y []float64, hp Hyperparameters) (json.RawMessage, error) {
	width, err := checkShape(X, y)
	if err != nil {
		return nil, err
	}

	n := len(X)
	st := forestState{Width: width, Trees: make([][]treeNode, hp.Int("n_estimators"))}
	seed := int64(hp.Int("random_state"))
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range st.Trees {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("tree %d: %v", t, r)
				}
			}()
			// Each tree owns its source so the result does not depend on
			// scheduling order.
			rng := rand.New(rand.NewSource(seed + int64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.Intn(n)
			}
			b := &treeBuilder{
				X:        X,
				y:        y,
				maxDepth: hp.Int("max_depth"),
				minSplit: hp.Int("min_samples_split"),
				minLeaf:  hp.Int("min_samples_leaf"),
			}
			b.build(sample, 0)
			st.Trees[t] = b.nodes

			log.Debug().
				Int("tree", t).
				Int("nodes", len(b.nodes)).
				Msg("tree grown")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("trees", len(st.Trees)).
		Int("rows", n).
		Int("width", width).
		Dur("duration", time.Since(start)).
		Msg("random forest fitted")
	return json.Marshal(st)
}

func (a *forestAdapter) Predict(state json.RawMessage, x []float64, _ map[string]any) (float64, error) {
	var st forestState
	if err := decodeState(state, &st); err != nil {
		return 0, err
	}
	if len(x) != st.Width {
		return 0, fmt.Errorf("feature vector has width %d, model expects %d", len(x), st.Width)
	}
	if len(st.Trees) == 0 {
		return 0, fmt.Errorf("forest has no trees")
	}
	sum := 0.0
	for _, tree := range st.Trees {
		sum += predictTree(tree, x)
	}
	return sum / float64(len(st.Trees)), nil
}

func predictTree(nodes []treeNode, x []float64) float64 {
	i := 0
	for !nodes[i].Leaf {
		if x[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return nodes[i].Value
}

// treeBuilder grows a CART regression tree minimizing squared error.
type treeBuilder struct {
	X        [][]float64
	y        []float64
	maxDepth int
	minSplit int
	minLeaf  int
	nodes    []treeNode
}

func (b *treeBuilder) build(idx []int, depth int) int {
	mean := 0.0
	for _, i := range idx {
		mean += b.y[i]
	}
	mean /= float64(len(idx))

	node := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Leaf: true, Value: mean})
	if len(idx) < b.minSplit || len(idx) < 2*b.minLeaf {
		return node
	}
	if b.maxDepth > 0 && depth >= b.maxDepth {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[node] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: mean}
	return node
}

func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)

	bestSSE := parentSSE - 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false
	sorted := make([]int, n)

	for f := range b.X[idx[0]] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		leftSum, leftSq := 0.0, 0.0
		for pos := 1; pos < n; pos++ {
			v := b.y[sorted[pos-1]]
			leftSum += v
			leftSq += v * v
			if pos < b.minLeaf || n-pos < b.minLeaf {
				continue
			}
			lo, hi := b.X[sorted[pos-1]][f], b.X[sorted[pos]][f]
			if lo == hi {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := leftSq - leftSum*leftSum/float64(pos) + rightSq - rightSum*rightSum/float64(n-pos)
			if sse < bestSSE {
				bestSSE = sse
				bestFeature, bestThreshold, found = f, (lo+hi)/2, true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
