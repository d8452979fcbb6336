package harvest

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/iziplay/csw-harvester/pkg/database"
)

// Progress tracks the harvest of a single instance
type Progress struct {
	Prefix    string     `json:"prefix"`
	IsRunning bool       `json:"isRunning"`
	Started   time.Time  `json:"started"`
	Finished  *time.Time `json:"finished,omitempty"`
	Pages     int        `json:"pages"`     // pages queued
	Processed int        `json:"processed"` // pages stored
	Failed    int        `json:"failed"`    // pages marked failed
	database.Outcome
}

// Stats holds the harvest progress of every instance seen since start
type Stats struct {
	mu        sync.RWMutex
	instances map[string]*Progress
}

func NewStats() *Stats {
	return &Stats{instances: make(map[string]*Progress)}
}

// Snapshot returns a copy of all progress entries ordered by prefix
func (s *Stats) Snapshot() []Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Progress, 0, len(s.instances))
	for _, p := range s.instances {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Progress) int { return strings.Compare(a.Prefix, b.Prefix) })
	return out
}

// Get returns a copy of the progress of one instance
func (s *Stats) Get(prefix string) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.instances[prefix]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// IsRunning reports whether any instance is being harvested
func (s *Stats) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.instances {
		if p.IsRunning {
			return true
		}
	}
	return false
}

// StartInstance resets the progress of an instance for a new queue
func (s *Stats) StartInstance(prefix string, pages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[prefix] = &Progress{
		Prefix:    prefix,
		IsRunning: true,
		Started:   time.Now(),
		Pages:     pages,
	}
}

// PageDone records a processed or failed page
func (s *Stats) PageDone(prefix string, out database.Outcome, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.entry(prefix)
	p.Outcome.Add(out)
	if failed {
		p.Failed++
		return
	}
	p.Processed++
}

// EndInstance marks the harvest of an instance as finished
func (s *Stats) EndInstance(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p := s.entry(prefix)
	p.IsRunning = false
	p.Finished = &now
}

// entry returns the progress of prefix, creating it for packages processed
// without a queue run, e.g.: triggered one by one
func (s *Stats) entry(prefix string) *Progress {
	p, ok := s.instances[prefix]
	if !ok {
		p = &Progress{Prefix: prefix, Started: time.Now()}
		s.instances[prefix] = p
	}
	return p
}
