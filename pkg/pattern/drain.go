package pattern

import (
	"sort"
	"sync"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/jaeyo/go-drain3/pkg/drain3"
)

// Miner groups event messages into Drain templates.
type Miner struct {
	mu    sync.Mutex
	drain *drain3.Drain
	// ids maps Drain cluster IDs to stable UUIDs so templates keep their
	// identity as Drain widens them.
	ids map[int64]uuid.UUID
}

// NewMiner creates a Miner with the default Drain parameters.
func NewMiner() (*Miner, error) {
	d, err := drain3.NewDrain(
		drain3.WithDepth(4),
		drain3.WithSimTh(0.4),
		drain3.WithExtraDelimiter(extraDelimiters),
	)
	if err != nil {
		return nil, errors.Errorf("create drain: %w", err)
	}
	return &Miner{
		drain: d,
		ids:   make(map[int64]uuid.UUID),
	}, nil
}

// Add feeds one message to Drain and returns the ID of the template it
// joined.
func (m *Miner) Add(message string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cluster, _, err := m.drain.AddLogMessage(message)
	if err != nil {
		return uuid.Nil, errors.Errorf("drain add: %w", err)
	}
	if cluster == nil {
		return uuid.Nil, errors.Errorf("drain returned no cluster for %q", message)
	}
	id, ok := m.ids[cluster.ClusterId]
	if !ok {
		id = uuid.New()
		m.ids[cluster.ClusterId] = id
	}
	return id, nil
}

// Templates returns the templates discovered so far, most frequent first.
func (m *Miner) Templates() []Template {
	m.mu.Lock()
	defer m.mu.Unlock()

	clusters := m.drain.GetClusters()
	templates := make([]Template, 0, len(clusters))
	for _, c := range clusters {
		id, ok := m.ids[c.ClusterId]
		if !ok {
			continue
		}
		templates = append(templates, Template{
			ID:      id,
			Pattern: c.GetTemplate(),
			Count:   int(c.Size),
		})
	}
	sort.SliceStable(templates, func(i, j int) bool {
		if templates[i].Count != templates[j].Count {
			return templates[i].Count > templates[j].Count
		}
		return templates[i].Pattern < templates[j].Pattern
	})
	return templates
}
