package usecase

import (
	"fmt"

	"shopchat/internal/domain"
)

type edgeKey struct {
	source string
	target string
}

// HandoffGraph holds the validated specialist registry and the directed,
// labeled handoff edges between specialists. Immutable after construction,
// safe for concurrent reads.
type HandoffGraph struct {
	specialists  map[string]domain.Specialist
	order        []string
	orchestrator string
	targets      map[string][]string
	labels       map[edgeKey]string
}

// BuildGraph validates the declared specialists and handoff edges and
// returns the graph. All violations are reported as ErrConfiguration:
//   - duplicate specialist names
//   - zero or more than one orchestrator
//   - an edge whose source or target is not a declared specialist
//   - a duplicate edge
//   - a non-orchestrator specialist with no edge back to the orchestrator
func BuildGraph(specialists []domain.Specialist, edges []domain.HandoffEdge) (*HandoffGraph, error) {
	const op = "BuildGraph"

	if len(specialists) == 0 {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration, "no specialists declared")
	}

	g := &HandoffGraph{
		specialists: make(map[string]domain.Specialist, len(specialists)),
		order:       make([]string, 0, len(specialists)),
		targets:     make(map[string][]string),
		labels:      make(map[edgeKey]string, len(edges)),
	}

	for _, s := range specialists {
		if s.Name == "" {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration, "specialist with empty name")
		}
		if _, exists := g.specialists[s.Name]; exists {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("duplicate specialist name %q", s.Name))
		}
		if s.Orchestrator {
			if g.orchestrator != "" {
				return nil, domain.NewDomainError(op, domain.ErrConfiguration,
					fmt.Sprintf("multiple orchestrators declared (%q and %q)", g.orchestrator, s.Name))
			}
			g.orchestrator = s.Name
		}
		g.specialists[s.Name] = s
		g.order = append(g.order, s.Name)
	}
	if g.orchestrator == "" {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration, "no orchestrator declared")
	}

	for _, e := range edges {
		if _, ok := g.specialists[e.Source]; !ok {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("edge source %q is not a declared specialist", e.Source))
		}
		if _, ok := g.specialists[e.Target]; !ok {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("edge target %q is not a declared specialist", e.Target))
		}
		if e.Source == e.Target {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("self edge on %q", e.Source))
		}
		key := edgeKey{source: e.Source, target: e.Target}
		if _, dup := g.labels[key]; dup {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("duplicate edge %s -> %s", e.Source, e.Target))
		}
		g.labels[key] = e.Label
		g.targets[e.Source] = append(g.targets[e.Source], e.Target)
	}

	// Every non-orchestrator specialist must be able to return to the
	// orchestrator so a conversation can never strand in a dead end.
	for _, name := range g.order {
		if name == g.orchestrator {
			continue
		}
		if _, ok := g.labels[edgeKey{source: name, target: g.orchestrator}]; !ok {
			return nil, domain.NewDomainError(op, domain.ErrConfiguration,
				fmt.Sprintf("specialist %q has no return edge to orchestrator %q", name, g.orchestrator))
		}
	}

	return g, nil
}

// Orchestrator returns the name of the single orchestrator specialist.
func (g *HandoffGraph) Orchestrator() string { return g.orchestrator }

// Specialist looks up a specialist by name.
func (g *HandoffGraph) Specialist(name string) (domain.Specialist, bool) {
	s, ok := g.specialists[name]
	return s, ok
}

// Roles returns all specialist names in declaration order.
func (g *HandoffGraph) Roles() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// TargetsFor returns the handoff targets reachable from the given
// specialist, in edge declaration order.
func (g *HandoffGraph) TargetsFor(source string) []string {
	ts := g.targets[source]
	out := make([]string, len(ts))
	copy(out, ts)
	return out
}

// Allows reports whether the graph permits a handoff from source to target.
func (g *HandoffGraph) Allows(source, target string) bool {
	_, ok := g.labels[edgeKey{source: source, target: target}]
	return ok
}

// LabelFor returns the routing label on the source -> target edge.
func (g *HandoffGraph) LabelFor(source, target string) (string, bool) {
	label, ok := g.labels[edgeKey{source: source, target: target}]
	return label, ok
}
