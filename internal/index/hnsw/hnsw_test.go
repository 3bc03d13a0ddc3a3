package hnsw

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/annex/internal/distance"
)

func seed(v int64) *int64 { return &v }

func newTestIndex(t *testing.T, opts Options) *Index {
	t.Helper()
	if opts.Dimension == 0 {
		opts.Dimension = 3
	}
	if opts.MaxElements == 0 {
		opts.MaxElements = 1000
	}
	if opts.RandomSeed == nil {
		opts.RandomSeed = seed(42)
	}
	h, err := New(opts)
	require.NoError(t, err)
	return h
}

func TestNew(t *testing.T) {
	h, err := New(Options{Dimension: 16, M: 8, EFConstruction: 150, MaxElements: 100})
	require.NoError(t, err)

	assert.Equal(t, 8, h.maxConns)
	assert.Equal(t, 16, h.maxConns0)
	assert.Equal(t, 150, h.opts.EFConstruction)
	assert.Equal(t, 0, h.Len())
}

func TestNew_Defaults(t *testing.T) {
	h, err := New(Options{Dimension: 4, M: 1, MaxElements: 10})
	require.NoError(t, err)

	assert.Equal(t, minimumM, h.maxConns)
	assert.Equal(t, DefaultEFConstruction, h.opts.EFConstruction)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Dimension: 0, MaxElements: 10})
	assert.Error(t, err)

	_, err = New(Options{Dimension: 4, MaxElements: 0})
	assert.Error(t, err)

	_, err = New(Options{Dimension: 4, MaxElements: 10, Metric: distance.Metric(99)})
	assert.Error(t, err)
}

func TestInsertSearch_L2(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 3, M: 4})

	vectors := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 5, 0},
	}
	for i, v := range vectors {
		id, err := h.Insert(v)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}

	results, err := h.Search([]float32{0, 0, 0}, 2, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint32(0), results[0].ID)
	assert.Equal(t, float32(0), results[0].Distance)
	assert.Equal(t, uint32(1), results[1].ID)
	assert.Equal(t, float32(1), results[1].Distance)
}

func TestSearch_TiesBrokenBySmallerID(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 2, M: 4})

	// Equidistant from the query.
	_, err := h.Insert([]float32{1, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{-1, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{0, 1})
	require.NoError(t, err)

	results, err := h.Search([]float32{0, 0}, 3, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, uint32(i), r.ID, "result %d", i)
		assert.Equal(t, float32(1), r.Distance)
	}
}

func TestSearch_EmptyGraph(t *testing.T) {
	h := newTestIndex(t, Options{})

	results, err := h.Search([]float32{1, 2, 3}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_InvalidK(t *testing.T) {
	h := newTestIndex(t, Options{})

	_, err := h.Search([]float32{1, 2, 3}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = h.Search([]float32{1, 2, 3}, -1, 10)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestSearch_KLargerThanGraph(t *testing.T) {
	h := newTestIndex(t, Options{})

	_, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{0, 1, 0})
	require.NoError(t, err)

	results, err := h.Search([]float32{0, 0, 0}, 10, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDimensionMismatch(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 3})

	_, err := h.Insert([]float32{1, 2})
	var dimErr *DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)

	_, err = h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)

	_, err = h.Search([]float32{1, 2, 3, 4}, 1, 10)
	assert.ErrorAs(t, err, &dimErr)
}

func TestCapacity(t *testing.T) {
	h := newTestIndex(t, Options{MaxElements: 2})

	_, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{0, 1, 0})
	require.NoError(t, err)

	_, err = h.Insert([]float32{0, 0, 1})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Tombstoned slots are not reclaimed.
	assert.True(t, h.Delete(0))
	_, err = h.Insert([]float32{0, 0, 1})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCosine(t *testing.T) {
	h := newTestIndex(t, Options{Metric: distance.MetricCosine})

	_, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{0, 1, 0})
	require.NoError(t, err)
	// Parallel to node 0, different magnitude.
	_, err = h.Insert([]float32{5, 0, 0})
	require.NoError(t, err)

	results, err := h.Search([]float32{2, 0, 0}, 3, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Both parallel vectors at distance 0, tie broken by id.
	assert.Equal(t, uint32(0), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, uint32(2), results[1].ID)
	assert.InDelta(t, 0, results[1].Distance, 1e-6)
	assert.Equal(t, uint32(1), results[2].ID)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)
}

func TestCosine_ZeroVector(t *testing.T) {
	h := newTestIndex(t, Options{Metric: distance.MetricCosine})

	_, err := h.Insert([]float32{0, 0, 0})
	assert.ErrorIs(t, err, ErrZeroVector)

	_, err = h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)

	// A zero query is allowed and sits at maximum cosine distance from
	// every stored vector.
	results, err := h.Search([]float32{0, 0, 0}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1, results[0].Distance, 1e-6)
}

func TestDelete(t *testing.T) {
	h := newTestIndex(t, Options{})

	id0, err := h.Insert([]float32{0, 0, 0})
	require.NoError(t, err)
	_, err = h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	assert.True(t, h.Delete(id0))
	assert.Equal(t, 1, h.Len())

	// Already deleted or unknown ids report false.
	assert.False(t, h.Delete(id0))
	assert.False(t, h.Delete(99))

	results, err := h.Search([]float32{0, 0, 0}, 2, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].ID)
}

func TestDelete_TombstonesKeepGraphNavigable(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 2, M: 4})

	// A line of points; deleting interior points must not cut off the far end.
	for i := 0; i < 50; i++ {
		_, err := h.Insert([]float32{float32(i), 0})
		require.NoError(t, err)
	}
	for i := 10; i < 40; i++ {
		require.True(t, h.Delete(uint32(i)))
	}

	results, err := h.Search([]float32{49, 0}, 5, 50)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, uint32(49), results[0].ID)
	assert.Equal(t, float32(0), results[0].Distance)
}

func TestInsert_AfterAllDeleted(t *testing.T) {
	h := newTestIndex(t, Options{})

	id0, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	require.True(t, h.Delete(id0))
	assert.Equal(t, 0, h.Len())

	// The next insert must become the new entry point.
	id1, err := h.Insert([]float32{0, 1, 0})
	require.NoError(t, err)

	results, err := h.Search([]float32{0, 1, 0}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id1, results[0].ID)
}

func TestDeterministicWithSeed(t *testing.T) {
	build := func() []Result {
		h := newTestIndex(t, Options{Dimension: 8, M: 8, RandomSeed: seed(7)})
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 500; i++ {
			v := make([]float32, 8)
			for j := range v {
				v[j] = rng.Float32()
			}
			_, err := h.Insert(v)
			require.NoError(t, err)
		}
		q := make([]float32, 8)
		for j := range q {
			q[j] = 0.5
		}
		results, err := h.Search(q, 10, 64)
		require.NoError(t, err)
		return results
	}

	assert.Equal(t, build(), build())
}

func TestRecall_SelfQueries(t *testing.T) {
	const (
		n   = 1000
		dim = 16
	)

	h := newTestIndex(t, Options{Dimension: dim, M: 8, EFConstruction: 200, MaxElements: n})
	rng := rand.New(rand.NewSource(99))

	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	// Querying a stored vector must find it at distance zero.
	hits := 0
	for i := 0; i < 100; i++ {
		idx := rng.Intn(n)
		results, err := h.Search(vectors[idx], 1, 100)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		if results[0].Distance == 0 {
			hits++
		}
	}
	assert.GreaterOrEqual(t, hits, 95, "self-query recall too low: %d/100", hits)
}

func TestRoundTrip_AllResultsUniqueAndSorted(t *testing.T) {
	const n = 100
	h := newTestIndex(t, Options{Dimension: 4, M: 8})
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < n; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	results, err := h.Search([]float32{0.5, 0.5, 0.5, 0.5}, n, n)
	require.NoError(t, err)
	require.Len(t, results, n)

	seen := make(map[uint32]bool, n)
	prev := float32(-1)
	for _, r := range results {
		require.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
		require.GreaterOrEqual(t, r.Distance, prev)
		prev = r.Distance
	}
}

func TestSearch_Idempotent(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 4, M: 8})
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 300; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	q := []float32{0.1, 0.9, 0.4, 0.6}
	first, err := h.Search(q, 10, 50)
	require.NoError(t, err)
	second, err := h.Search(q, 10, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStats(t *testing.T) {
	h := newTestIndex(t, Options{})

	st := h.Stats()
	assert.Equal(t, Stats{Nodes: 0, Live: 0, MaxLevel: -1}, st)

	id, err := h.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	h.Delete(id)

	st = h.Stats()
	assert.Equal(t, 1, st.Nodes)
	assert.Equal(t, 0, st.Live)
}

func TestConcurrentSearch(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 4, M: 8})
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	done := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func(g int) {
			q := []float32{float32(g) / 8, 0.5, 0.5, 0.5}
			for i := 0; i < 100; i++ {
				if _, err := h.Search(q, 5, 32); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(g)
	}
	for g := 0; g < 8; g++ {
		assert.NoError(t, <-done)
	}
}

func TestRandomLevel_Bounds(t *testing.T) {
	h := newTestIndex(t, Options{Dimension: 4, M: 16, MaxElements: 10_000})

	for i := 0; i < 10_000; i++ {
		l := h.randomLevel()
		require.GreaterOrEqual(t, l, 0)
		require.LessOrEqual(t, l, h.levelCap)
	}
}

func ExampleIndex_Search() {
	h, _ := New(Options{Dimension: 2, M: 4, MaxElements: 10})
	_, _ = h.Insert([]float32{0, 0})
	_, _ = h.Insert([]float32{3, 4})

	results, _ := h.Search([]float32{0, 1}, 1, 10)
	fmt.Println(results[0].ID, results[0].Distance)
	// Output: 0 1
}
