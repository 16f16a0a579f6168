// Package hccref provides a cached, TTL-reloaded lookup from ICD-10 code to
// HCC (Hierarchical Condition Category) reference entry, consumed by the
// Analyzer and Validator stage workers.
package hccref

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"hccpipe.dev/clinical"
)

// DefaultTTL is the interval after which a reload is attempted on next access.
const DefaultTTL = time.Hour

// snapshot is the immutable state swapped atomically on reload.
type snapshot struct {
	byDotted   map[string]clinical.HCCEntry
	byUndotted map[string]clinical.HCCEntry
	loadedAt   time.Time
}

// Reference is a process-scoped cached holder over the HCC code table.
// Reads always observe a single consistent snapshot; reloads swap pointers
// atomically so readers never see a partially-rebuilt map.
type Reference struct {
	csvPath string
	ttl     time.Duration
	log     *logrus.Entry

	current atomic.Pointer[snapshot]
}

// New constructs a Reference that lazily loads csvPath on first access.
func New(csvPath string, log *logrus.Entry) *Reference {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reference{csvPath: csvPath, ttl: DefaultTTL, log: log}
}

// ensureFresh loads the CSV if no snapshot exists yet, or reloads it if the
// TTL has elapsed. A failed reload keeps the prior snapshot and only logs —
// the reference never becomes unusable because of one bad reload.
func (r *Reference) ensureFresh() *snapshot {
	cur := r.current.Load()
	if cur != nil && time.Since(cur.loadedAt) < r.ttl {
		return cur
	}

	entries, err := loadCSV(r.csvPath)
	if err != nil {
		if cur != nil {
			r.log.WithError(err).Warn("hccref: reload failed, keeping prior snapshot")
			return cur
		}
		r.log.WithError(err).Error("hccref: initial load failed")
		empty := &snapshot{byDotted: map[string]clinical.HCCEntry{}, byUndotted: map[string]clinical.HCCEntry{}, loadedAt: time.Now()}
		r.current.Store(empty)
		return empty
	}

	next := &snapshot{
		byDotted:   make(map[string]clinical.HCCEntry, len(entries)),
		byUndotted: make(map[string]clinical.HCCEntry, len(entries)),
		loadedAt:   time.Now(),
	}
	for _, e := range entries {
		next.byDotted[e.ICDCode] = e
		next.byUndotted[stripDot(e.ICDCode)] = e
	}
	r.current.Store(next)
	return next
}

// normalize mirrors the single transformation the spec allows between
// dotted and undotted ICD-10 forms: dot removal.
func normalize(code string) string {
	return stripDot(strings.TrimSpace(code))
}

func stripDot(code string) string {
	return strings.ReplaceAll(code, ".", "")
}

// IsHCCRelevant reports whether code (in either dotted or undotted form) is
// a key in the current snapshot.
func (r *Reference) IsHCCRelevant(code string) bool {
	if code == "" {
		return false
	}
	snap := r.ensureFresh()
	_, ok := snap.byUndotted[normalize(code)]
	return ok
}

// Get returns the entry for code and whether it was found.
func (r *Reference) Get(code string) (clinical.HCCEntry, bool) {
	if code == "" {
		return clinical.HCCEntry{}, false
	}
	snap := r.ensureFresh()
	e, ok := snap.byUndotted[normalize(code)]
	return e, ok
}

// CategoryCount pairs a tag with the number of codes carrying it.
type CategoryCount struct {
	Category string
	Count    int
}

// Categories returns the sorted unique tag values with per-tag code counts.
func (r *Reference) Categories() []CategoryCount {
	snap := r.ensureFresh()
	counts := make(map[string]int)
	for _, e := range snap.byUndotted {
		counts[e.Category]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for cat, n := range counts {
		out = append(out, CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Sample returns up to n entries from the current snapshot, used by the
// Analyzer to cap the reference data it sends the LLM (see §4.4.2 step 4).
func (r *Reference) Sample(n int) []clinical.HCCEntry {
	snap := r.ensureFresh()
	out := make([]clinical.HCCEntry, 0, n)
	for _, e := range snap.byDotted {
		if len(out) >= n {
			break
		}
		out = append(out, e)
	}
	return out
}

// All returns every entry in the current snapshot, keyed by dotted code.
func (r *Reference) All() map[string]clinical.HCCEntry {
	snap := r.ensureFresh()
	out := make(map[string]clinical.HCCEntry, len(snap.byDotted))
	for k, v := range snap.byDotted {
		out[k] = v
	}
	return out
}
