package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrProcessorNotFound is returned when no processor is configured for an institution.
var ErrProcessorNotFound = errors.New("processor not found")

// Reshape strategies.
const (
	StrategyPaginatedMajor = "paginated-major"
	StrategyFlat           = "flat"
)

// Processor binds an institution to the extraction endpoint and the reshaping of its output.
type Processor struct {
	ID         string
	Endpoint   string
	University string
	Campus     string
	Strategy   string
}

// DefaultProcessors returns the built-in processor map.
func DefaultProcessors() map[string]Processor {
	return map[string]Processor{
		"baekseok-major": {
			ID:         "baekseok-major",
			Endpoint:   "projects/804568381273/locations/us/processors/3105218432a64f1c",
			University: "백석대학교",
			Campus:     "천안",
			Strategy:   StrategyPaginatedMajor,
		},
	}
}

// ParseProcessors reads "id=endpoint|strategy,..." entries. Known ids keep their university and
// campus; unknown ids get "N/A".
func ParseProcessors(raw string, base map[string]Processor) (map[string]Processor, error) {
	out := make(map[string]Processor, len(base))
	for id, p := range base {
		out[id] = p
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rest, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid processor entry %q", entry)
		}
		endpoint, strategy, _ := strings.Cut(rest, "|")
		endpoint = strings.TrimSpace(endpoint)
		strategy = strings.TrimSpace(strategy)
		if endpoint == "" {
			return nil, fmt.Errorf("processor %s: endpoint is required", id)
		}
		if strategy == "" {
			strategy = StrategyFlat
		}
		if strategy != StrategyFlat && strategy != StrategyPaginatedMajor {
			return nil, fmt.Errorf("processor %s: unknown strategy %q", id, strategy)
		}

		p, known := out[id]
		if !known {
			p = Processor{ID: id, University: "N/A", Campus: "N/A"}
		}
		p.Endpoint = endpoint
		p.Strategy = strategy
		out[id] = p
	}
	return out, nil
}

// ProcessorIDs lists configured ids in lexical order.
func ProcessorIDs(processors map[string]Processor) []string {
	ids := make([]string, 0, len(processors))
	for id := range processors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
