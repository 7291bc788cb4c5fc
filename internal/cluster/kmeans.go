// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cluster generates many well-separated themes by clustering code
// embeddings, the breadth-maximizing alternative to incremental merge.
// Implements: prd005-clustering (R1-R4); docs/ARCHITECTURE § Clustering.
package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// DimensionMismatchError reports an embedding whose length disagrees with
// the dimension detected from the run's first valid embedding. Fatal for
// the run's clustering path (R1.3).
type DimensionMismatchError struct {
	Detected int
	Actual   int
	Index    int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding %d has dimension %d, detected dimension for this run is %d",
		e.Index, e.Actual, e.Detected)
}

// ErrNoEmbeddings means no code carried a usable embedding, so there is
// nothing to detect a dimension from. Run-level configuration error (R1.4).
var ErrNoEmbeddings = fmt.Errorf("no codes carry embeddings: cannot detect embedding dimension")

// DetectDimension finds the run's embedding dimensionality from the first
// valid embedding and validates every vector against it. Dimensionality
// varies by provider (384, 768, 1536, ...) and is never assumed (R1.1, R1.2).
func DetectDimension(codes []types.Code) (int, error) {
	detected := 0
	for i, c := range codes {
		n := len(c.Embedding)
		if n == 0 {
			continue
		}
		if detected == 0 {
			detected = n
			continue
		}
		if n != detected {
			return 0, &DimensionMismatchError{Detected: detected, Actual: n, Index: i}
		}
	}
	if detected == 0 {
		return 0, ErrNoEmbeddings
	}
	return detected, nil
}

// vec is a unit-normalized embedding paired with its code index.
type vec struct {
	idx int
	v   []float64
}

// normalizeAll converts embedded codes to unit vectors, dropping codes with
// no embedding. Cosine similarity then reduces to a dot product.
func normalizeAll(codes []types.Code, dim int) []vec {
	out := make([]vec, 0, len(codes))
	for i, c := range codes {
		if len(c.Embedding) != dim {
			continue
		}
		v := make([]float64, dim)
		var norm float64
		for j, x := range c.Embedding {
			v[j] = float64(x)
			norm += v[j] * v[j]
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			continue
		}
		for j := range v {
			v[j] /= norm
		}
		out = append(out, vec{idx: i, v: v})
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// seedCentroids picks k starting centroids with farthest-point seeding:
// the first point comes from the seeded generator, each later one is the
// point with the smallest maximum similarity to any chosen centroid. The
// seeds start maximally spread, which is the whole point of this path (R2.1).
func seedCentroids(points []vec, k int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	first := rng.Intn(len(points))

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[first].v))

	for len(centroids) < k {
		bestIdx := -1
		bestScore := math.Inf(1)
		for i, p := range points {
			// Similarity to the nearest chosen centroid; lower is farther.
			nearest := math.Inf(-1)
			for _, c := range centroids {
				if s := dot(p.v, c); s > nearest {
					nearest = s
				}
			}
			if nearest < bestScore {
				bestScore = nearest
				bestIdx = i
			}
		}
		centroids = append(centroids, clone(points[bestIdx].v))
	}
	return centroids
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// assignment maps every point to its most similar centroid.
func assign(points []vec, centroids [][]float64) []int {
	out := make([]int, len(points))
	for i, p := range points {
		best, bestSim := 0, math.Inf(-1)
		for c, centroid := range centroids {
			if s := dot(p.v, centroid); s > bestSim {
				bestSim = s
				best = c
			}
		}
		out[i] = best
	}
	return out
}

// recompute returns the unit-normalized mean of each cluster's members.
// Empty clusters keep their previous centroid.
func recompute(points []vec, assigned []int, centroids [][]float64) [][]float64 {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := assigned[i]
		counts[c]++
		for j, x := range p.v {
			sums[c][j] += x
		}
	}

	out := make([][]float64, len(centroids))
	for c := range sums {
		if counts[c] == 0 {
			out[c] = centroids[c]
			continue
		}
		var norm float64
		for _, x := range sums[c] {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			out[c] = centroids[c]
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= norm
		}
		out[c] = sums[c]
	}
	return out
}

// kmeans iterates assignment and recomputation until the largest centroid
// movement falls below epsilon or the iteration cap is hit. The cap makes
// termination unconditional (R2.2, R2.3).
func kmeans(points []vec, centroids [][]float64, epsilon float64, maxIterations int) ([]int, [][]float64) {
	var assigned []int
	for iter := 0; iter < maxIterations; iter++ {
		assigned = assign(points, centroids)
		next := recompute(points, assigned, centroids)

		maxMove := 0.0
		for c := range centroids {
			// Movement on the unit sphere: 1 - cos(old, new).
			if move := 1 - dot(centroids[c], next[c]); move > maxMove {
				maxMove = move
			}
		}
		centroids = next
		if maxMove < epsilon {
			break
		}
	}
	if assigned == nil {
		assigned = assign(points, centroids)
	}
	return assigned, centroids
}

// mergeSimilar folds together cluster pairs whose centroids remain too
// similar after convergence. Fewer, more distinct themes beat padding the
// target count with near-duplicates (R3.1, R3.2).
func mergeSimilar(points []vec, assigned []int, centroids [][]float64, maxSim float64) ([]int, [][]float64) {
	for {
		mergedAny := false
		for a := 0; a < len(centroids) && !mergedAny; a++ {
			for b := a + 1; b < len(centroids); b++ {
				if dot(centroids[a], centroids[b]) <= maxSim {
					continue
				}
				// Fold b into a, drop b, renumber.
				for i := range assigned {
					if assigned[i] == b {
						assigned[i] = a
					} else if assigned[i] > b {
						assigned[i]--
					}
				}
				centroids = append(centroids[:b], centroids[b+1:]...)
				centroids = recompute(points, assigned, centroids)
				mergedAny = true
				break
			}
		}
		if !mergedAny {
			return assigned, centroids
		}
	}
}
