package alignment

import (
	"math"
	"sort"
	"sync"
)

const (
	DefaultMonitorSize = 100
	topRecommendations = 5
)

// Monitor keeps the most recent scoring results for reporting.
type Monitor struct {
	mu      sync.Mutex
	size    int
	results []Result
}

func NewMonitor(size int) *Monitor {
	if size <= 0 {
		size = DefaultMonitorSize
	}
	return &Monitor{size: size}
}

func (m *Monitor) Observe(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	if over := len(m.results) - m.size; over > 0 {
		m.results = append([]Result(nil), m.results[over:]...)
	}
}

type RecommendationCount struct {
	Recommendation string `json:"recommendation"`
	Count          int    `json:"count"`
}

// Stats summarizes the observed results. AlignmentRate is the percentage of
// checks scoring at least 3.
type Stats struct {
	TotalChecks        int                   `json:"totalChecks"`
	AverageScore       float64               `json:"averageScore"`
	AlignmentRate      int                   `json:"alignmentRate"`
	TopRecommendations []RecommendationCount `json:"topRecommendations"`
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TopRecommendations: []RecommendationCount{}}
	if len(m.results) == 0 {
		return stats
	}

	total, aligned := 0, 0
	counts := map[string]int{}
	var order []string
	for _, r := range m.results {
		total += r.Score
		if r.Aligned() {
			aligned++
		}
		for _, rec := range r.Recommendations {
			if _, seen := counts[rec.Suggestion]; !seen {
				order = append(order, rec.Suggestion)
			}
			counts[rec.Suggestion]++
		}
	}

	n := len(m.results)
	stats.TotalChecks = n
	stats.AverageScore = math.Round(float64(total)/float64(n)*100) / 100
	stats.AlignmentRate = int(math.Round(float64(aligned) / float64(n) * 100))

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topRecommendations {
		order = order[:topRecommendations]
	}
	for _, suggestion := range order {
		stats.TopRecommendations = append(stats.TopRecommendations, RecommendationCount{
			Recommendation: suggestion,
			Count:          counts[suggestion],
		})
	}
	return stats
}
