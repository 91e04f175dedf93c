/*
Package rate provides SlidingRPS, a bounded-memory per-key sliding-window
request-rate estimator. The portal uses it to keep a single misbehaving
client (or a captive browser stuck in a reload loop) from flooding /click.
*/
package rate

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type SlidingRPS struct {
	mu      sync.Mutex
	window  int // seconds
	cap     int // max keys to retain
	items   map[string]*list.Element
	lru     *list.List // front = most recently used
	nowFunc func() int64
}

type rpsEntry struct {
	key     string
	first   int64    // first second seen
	last    int64    // last updated second
	buckets []uint16 // ring of per-second counts, indexed by second % window
}

// NewSlidingRPS creates a 10k-capacity estimator with a window in seconds.
func NewSlidingRPS(window int) *SlidingRPS {
	return NewSlidingRPSWithCapacity(window, 10_000)
}

func NewSlidingRPSWithCapacity(window, capacity int) *SlidingRPS {
	if window <= 0 {
		window = 10
	}
	if capacity <= 0 {
		capacity = 10_000
	}
	return &SlidingRPS{
		window:  window,
		cap:     capacity,
		items:   make(map[string]*list.Element, capacity/2),
		lru:     list.New(),
		nowFunc: func() int64 { return time.Now().Unix() },
	}
}

// Add records one event for key and returns its estimated RPS over the
// observed part of the window.
func (s *SlidingRPS) Add(key string) float64 {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		en := el.Value.(*rpsEntry)
		s.advance(en, now)
		s.bump(en, now)
		s.lru.MoveToFront(el)
		return s.estimate(en, now)
	}

	if s.lru.Len() >= s.cap {
		if back := s.lru.Back(); back != nil {
			del := back.Value.(*rpsEntry)
			delete(s.items, del.key)
			s.lru.Remove(back)
			log.Debug().Str("key", del.key).Msg("rate guard evicted key at capacity")
		}
	}
	en := &rpsEntry{key: key, first: now, last: now, buckets: make([]uint16, s.window)}
	s.bump(en, now)
	s.items[key] = s.lru.PushFront(en)
	return s.estimate(en, now)
}

// Len returns the number of tracked keys.
func (s *SlidingRPS) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// advance zeroes the buckets for the seconds elapsed since the last event.
func (s *SlidingRPS) advance(en *rpsEntry, now int64) {
	if now <= en.last {
		return
	}
	gap := now - en.last
	if gap >= int64(s.window) {
		for i := range en.buckets {
			en.buckets[i] = 0
		}
		en.first = now
	} else {
		for sec := en.last + 1; sec <= now; sec++ {
			en.buckets[sec%int64(s.window)] = 0
		}
	}
	en.last = now
}

func (s *SlidingRPS) bump(en *rpsEntry, now int64) {
	i := now % int64(s.window)
	if en.buckets[i] < ^uint16(0) {
		en.buckets[i]++
	}
}

func (s *SlidingRPS) estimate(en *rpsEntry, now int64) float64 {
	var total int
	for _, c := range en.buckets {
		total += int(c)
	}
	span := now - en.first + 1
	if span > int64(s.window) {
		span = int64(s.window)
	}
	return float64(total) / float64(span)
}
