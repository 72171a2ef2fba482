package matching

import (
	"strings"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/vendor"
)

// Filter represents a single narrowing step applied to the vendor pool before
// scoring. Filters are pure: they never touch I/O.
type Filter interface {
	Name() string
	Apply(v *vendor.Vendors) (*vendor.Vendors, Step)
}

// Step describes the result of executing a filter.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Run executes the supplied filters sequentially, logging each step.
func Run(logger *zap.Logger, filters []Filter, v *vendor.Vendors) *vendor.Vendors {
	for _, f := range filters {
		next, info := f.Apply(v)

		if logger != nil {
			logger.Debug("filter step",
				zap.String("name", f.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		v = next
	}
	return v
}

type activeFilter struct{}

// NewActive keeps only vendors marked active. Repositories usually apply this
// at the query level already; the filter guards callers that pass a broader
// pool.
func NewActive() Filter { return &activeFilter{} }

func (f *activeFilter) Name() string { return "active" }

func (f *activeFilter) Apply(v *vendor.Vendors) (*vendor.Vendors, Step) {
	initial := v.Len()
	kept := make([]*vendor.Record, 0, initial)
	for _, r := range v.Items {
		if r.Active {
			kept = append(kept, r)
		}
	}
	next := &vendor.Vendors{Items: kept}
	return next, Step{Initial: initial, Dropped: initial - next.Len(), Left: next.Len()}
}

type categoryFilter struct {
	category string
}

// NewCategory keeps vendors serving the given category, including matches via
// the legacy comma-separated category string.
func NewCategory(category string) Filter {
	return &categoryFilter{category: strings.TrimSpace(category)}
}

func (f *categoryFilter) Name() string { return "category" }

func (f *categoryFilter) Apply(v *vendor.Vendors) (*vendor.Vendors, Step) {
	initial := v.Len()
	kept := make([]*vendor.Record, 0, initial)
	for _, r := range v.Items {
		if r.MatchesCategory(f.category) {
			kept = append(kept, r)
		}
	}
	next := &vendor.Vendors{Items: kept}
	return next, Step{Initial: initial, Dropped: initial - next.Len(), Left: next.Len()}
}
