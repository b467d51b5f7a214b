// Package telemetry records local query metrics for relevance and latency
// tuning. Everything stays in process memory - no external reporting.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP200  LatencyBucket = "p200"  // 50-200ms
	BucketP500  LatencyBucket = "p500"  // 200-500ms
	BucketP2000 LatencyBucket = "p2000" // 500ms-2s
	BucketSlow  LatencyBucket = "slow"  // >=2s
)

// LatencyToBucket converts milliseconds to the histogram bucket.
func LatencyToBucket(ms int64) LatencyBucket {
	switch {
	case ms < 50:
		return BucketP50
	case ms < 200:
		return BucketP200
	case ms < 500:
		return BucketP500
	case ms < 2000:
		return BucketP2000
	default:
		return BucketSlow
	}
}

// QueryEvent is one completed search request.
type QueryEvent struct {
	Query           string
	Mode            string // "standard" or "refine"
	Strategy        string // "hybrid" or "semantic_only"
	RerankStrategy  string
	LatencyMs       int64
	ResultCount     int
	ZeroResults     bool
	SemanticSkipped bool
	RerankSkipped   bool
	RerankTimedOut  bool
	ExpandedQueries int
	Timestamp       time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer of recent events.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	out := make([]T, 0, b.size)
	start := (b.head - b.size + b.capacity) % b.capacity
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%b.capacity])
	}
	return out
}

// Len returns the current item count.
func (b *CircularBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Snapshot is a point-in-time summary of recorded metrics.
type Snapshot struct {
	TotalQueries     int64                   `json:"total_queries"`
	ZeroResults      int64                   `json:"zero_results"`
	SemanticSkipped  int64                   `json:"semantic_skipped"`
	RerankSkipped    int64                   `json:"rerank_skipped"`
	RerankTimedOut   int64                   `json:"rerank_timed_out"`
	RefineQueries    int64                   `json:"refine_queries"`
	LatencyBuckets   map[LatencyBucket]int64 `json:"latency_buckets"`
	StrategyCounts   map[string]int64        `json:"strategy_counts"`
	ZeroResultHashes []string                `json:"zero_result_hashes,omitempty"`
}

// Metrics aggregates query events. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	totalQueries    int64
	zeroResults     int64
	semanticSkipped int64
	rerankSkipped   int64
	rerankTimedOut  int64
	refineQueries   int64
	latencyBuckets  map[LatencyBucket]int64
	strategyCounts  map[string]int64

	recent *CircularBuffer[QueryEvent]

	// zeroResultQueries remembers hashed zero-result queries so recall
	// gaps can be analyzed without retaining raw user input.
	zeroResultQueries *lru.Cache[string, int]
}

// NewMetrics creates a metrics aggregator keeping the most recent
// recentSize events.
func NewMetrics(recentSize int) *Metrics {
	zeroCache, _ := lru.New[string, int](256)
	return &Metrics{
		latencyBuckets:    make(map[LatencyBucket]int64),
		strategyCounts:    make(map[string]int64),
		recent:            NewCircularBuffer[QueryEvent](recentSize),
		zeroResultQueries: zeroCache,
	}
}

// Observe records one completed query.
func (m *Metrics) Observe(ev QueryEvent) {
	if m == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.latencyBuckets[LatencyToBucket(ev.LatencyMs)]++
	m.strategyCounts[ev.Strategy]++

	if ev.ZeroResults {
		m.zeroResults++
		h := HashQuery(ev.Query)
		count, _ := m.zeroResultQueries.Get(h)
		m.zeroResultQueries.Add(h, count+1)
	}
	if ev.SemanticSkipped {
		m.semanticSkipped++
	}
	if ev.RerankSkipped {
		m.rerankSkipped++
	}
	if ev.RerankTimedOut {
		m.rerankTimedOut++
	}
	if ev.Mode == "refine" {
		m.refineQueries++
	}

	m.recent.Add(ev)
}

// Recent returns the most recent events, oldest first.
func (m *Metrics) Recent() []QueryEvent {
	if m == nil {
		return nil
	}
	return m.recent.Items()
}

// Snapshot returns a copy of all aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalQueries:    m.totalQueries,
		ZeroResults:     m.zeroResults,
		SemanticSkipped: m.semanticSkipped,
		RerankSkipped:   m.rerankSkipped,
		RerankTimedOut:  m.rerankTimedOut,
		RefineQueries:   m.refineQueries,
		LatencyBuckets:  make(map[LatencyBucket]int64, len(m.latencyBuckets)),
		StrategyCounts:  make(map[string]int64, len(m.strategyCounts)),
	}
	for k, v := range m.latencyBuckets {
		s.LatencyBuckets[k] = v
	}
	for k, v := range m.strategyCounts {
		s.StrategyCounts[k] = v
	}
	for _, h := range m.zeroResultQueries.Keys() {
		s.ZeroResultHashes = append(s.ZeroResultHashes, h)
	}
	return s
}

// HashQuery returns a short stable hash of a normalized query string.
// Used instead of raw queries wherever telemetry is persisted or logged.
func HashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
