package sitemap

import (
	"go.uber.org/zap"
)

// Skip reasons reported when a site contributes nothing.
const (
	SkipParseError      = "parse_error"
	SkipStructureAbsent = "structure_absent"
	SkipNoLocation      = "no_location"
)

// Location is one sitemap URL taken verbatim from a site's index.
type Location struct {
	URL  string
	Site string
}

// Outcome describes what a single site contributed.
type Outcome struct {
	Added      int
	Dropped    int
	SkipReason string
}

// Aggregator accumulates locations in site order, then document order within a site.
type Aggregator struct {
	locations []Location
	logger    *zap.Logger
}

// NewAggregator returns an empty aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Add parses one site's raw response and appends whatever locations it yields.
// status and sourceURL are only used for logging.
func (a *Aggregator) Add(site, sourceURL string, status int, body []byte) Outcome {
	doc, err := Parse(body)
	if err != nil {
		a.logger.Warn("skipping site, sitemap did not parse",
			zap.String("site", site),
			zap.String("url", sourceURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		return Outcome{SkipReason: SkipParseError}
	}

	if absent, ok := doc.(Absent); ok {
		a.logger.Warn("skipping site, no sitemap index entries",
			zap.String("site", site),
			zap.String("url", sourceURL),
			zap.Int("status", status),
			zap.String("root", absent.Root),
		)
		return Outcome{SkipReason: SkipStructureAbsent}
	}

	locs, dropped := Locations(doc)
	if dropped > 0 {
		a.logger.Warn("sitemap entries without loc ignored",
			zap.String("site", site),
			zap.String("url", sourceURL),
			zap.Int("dropped", dropped),
		)
	}
	for _, loc := range locs {
		a.locations = append(a.locations, Location{URL: loc, Site: site})
	}

	out := Outcome{Added: len(locs), Dropped: dropped}
	if len(locs) == 0 {
		out.SkipReason = SkipNoLocation
	}
	return out
}

// Locations returns a copy of the accumulated list.
func (a *Aggregator) Locations() []Location {
	out := make([]Location, len(a.locations))
	copy(out, a.locations)
	return out
}

// Len is the number of locations accumulated so far.
func (a *Aggregator) Len() int {
	return len(a.locations)
}
