package middleware

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	size  time.Duration
	count int64
}

// localWindows is the in-process fallback used when Redis is not configured.
type localWindows struct {
	mu      sync.Mutex
	windows map[string]*window
}

func newLocalWindows() *localWindows {
	return &localWindows{windows: make(map[string]*window)}
}

func (l *localWindows) incr(key string, size time.Duration, now time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= w.size {
		l.sweep(now)
		w = &window{start: now, size: size}
		l.windows[key] = w
	}
	w.count++
	return w.count
}

// sweep drops expired windows so idle clients do not pile up.
func (l *localWindows) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= w.size {
			delete(l.windows, k)
		}
	}
}
