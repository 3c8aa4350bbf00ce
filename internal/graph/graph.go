// Package graph persists the Navigation Graph: Nodes and their outgoing
// Paths, keyed by source NodeId (spec.md §4.C6). Load/save generalizes the
// teacher's internal/tools/fileio.go (plain read/write) and
// internal/tools/workspace.go (on-demand directory creation) into an
// atomic read-modify-rewrite store.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haricheung/navbrain/internal/types"
)

// ErrPendingDestination is returned by AddPath/UpdatePath when asked to
// persist a Path whose destination is still the "pending" placeholder
// (property P6, spec.md §4.C8 "Placeholder rule").
var ErrPendingDestination = errors.New("navbrain: cannot persist a path with a pending destination")

// Graph is the in-memory Navigation Graph, synchronized for concurrent
// access per spec.md §5 ("the graph file on disk is accessed only through
// C6"). Every mutating method re-serializes and rewrites the whole file
// before returning, matching the "write discipline" in spec.md §4.C6.
type Graph struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger

	nodeOrder []string
	nodes     map[string]types.Node

	edgeOrder []string
	edges     map[string][]types.Path

	currentNodeId *types.NodeId
	version       string
	createdAt     time.Time
	updatedAt     time.Time
}

// Stats is the supplemented GetGraphStats result (SPEC_FULL.md, since
// spec.md §6 names "graphStats" in get_current_node's return shape without
// defining its fields).
type Stats struct {
	NodeCount            int `json:"nodeCount"`
	PathCount            int `json:"pathCount"`
	CurrentOutgoingPaths int `json:"currentOutgoingPaths"`
}

// Load reads the graph file at path, bootstrapping a fresh graph (with the
// Spotlight node, invariant I5) if the file does not exist, and recovering
// to an empty-plus-Spotlight graph on a JSON parse error (GraphCorruption,
// spec.md §7.6 / scenario S6) rather than failing outright.
func Load(path string) (*Graph, error) {
	g := &Graph{
		path:    path,
		log:     slog.Default().With("component", "graph"),
		nodes:   map[string]types.Node{},
		edges:   map[string][]types.Path{},
		version: types.GraphVersion,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		now := time.Now().UTC()
		g.createdAt, g.updatedAt = now, now
		g.ensureSpotlight(now)
		if saveErr := g.saveLocked(); saveErr != nil {
			return nil, saveErr
		}
		return g, nil
	case err != nil:
		return nil, fmt.Errorf("navbrain: read graph file: %w", err)
	}

	if decodeErr := g.decode(data); decodeErr != nil {
		g.log.Warn("graph file corrupt, continuing with an empty graph", "path", path, "err", decodeErr)
		now := time.Now().UTC()
		g.nodes = map[string]types.Node{}
		g.edges = map[string][]types.Path{}
		g.nodeOrder = nil
		g.edgeOrder = nil
		g.currentNodeId = nil
		g.createdAt, g.updatedAt = now, now
		g.ensureSpotlight(now)
		return g, nil
	}

	g.ensureSpotlight(time.Now().UTC())
	return g, nil
}

func (g *Graph) ensureSpotlight(now time.Time) {
	id := types.NodeId{ProgramName: types.SpotlightProgramName, StateHash: types.SpotlightStateHash}
	key := id.Key()
	if _, exists := g.nodes[key]; exists {
		return
	}
	g.nodeOrder = append(g.nodeOrder, key)
	g.nodes[key] = types.Node{
		Id:            id,
		UIElements:    []types.UIElement{},
		CreatedAt:     now,
		LastVisitedAt: now,
		VisitCount:    0,
	}
}

// Save re-serializes and atomically rewrites the graph file.
func (g *Graph) Save() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saveLocked()
}

func (g *Graph) saveLocked() error {
	g.updatedAt = time.Now().UTC()
	data, err := g.encode()
	if err != nil {
		return fmt.Errorf("navbrain: encode graph: %w", err)
	}

	dir := filepath.Dir(g.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("navbrain: create graph directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".navigation-*.json.tmp")
	if err != nil {
		return fmt.Errorf("navbrain: create graph temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("navbrain: write graph temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("navbrain: close graph temp file: %w", err)
	}
	if err := os.Rename(tmpPath, g.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("navbrain: rename graph temp file: %w", err)
	}
	return nil
}

// AddNode creates or replaces the Node keyed by node.Id, preserving
// insertion order on create (property P3's "edge-list insertion order"
// guarantee extends to node order for the same reason).
func (g *Graph) AddNode(node types.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertNode(node)
	return g.saveLocked()
}

// UpdateNode replaces an existing Node's content, preserving its original
// CreatedAt and ChildrenIds when the incoming value leaves them zero,
// matching the re-identification update path (spec.md §3 "Lifecycles").
func (g *Graph) UpdateNode(node types.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := node.Id.Key()
	if existing, ok := g.nodes[key]; ok {
		if node.CreatedAt.IsZero() {
			node.CreatedAt = existing.CreatedAt
		}
		if node.ChildrenIds == nil {
			node.ChildrenIds = existing.ChildrenIds
		}
	}
	g.upsertNode(node)
	return g.saveLocked()
}

func (g *Graph) upsertNode(node types.Node) {
	key := node.Id.Key()
	if _, exists := g.nodes[key]; !exists {
		g.nodeOrder = append(g.nodeOrder, key)
	}
	g.nodes[key] = node
}

// GetNode returns the Node for id, if present.
func (g *Graph) GetNode(id types.NodeId) (types.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id.Key()]
	return node, ok
}

// AddPath upserts p into edges[p.FromNodeId] by the rule in spec.md §4.C6:
// replace any entry whose id matches OR whose toNodeId matches, otherwise
// append (enforcing invariant I2 / property P4). Refuses to persist a path
// with a pending destination (property P6).
func (g *Graph) AddPath(p types.Path) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.upsertPath(p); err != nil {
		return err
	}
	return g.saveLocked()
}

// UpdatePath applies the same upsert rule as AddPath; spec.md §4.C6 lists
// them as separate design-level operations, but both must preserve I2, so
// they share one implementation.
func (g *Graph) UpdatePath(p types.Path) error {
	return g.AddPath(p)
}

func (g *Graph) upsertPath(p types.Path) error {
	if p.ToNodeId.IsPending() {
		return fmt.Errorf("%w: path %s -> %+v", ErrPendingDestination, p.Id, p.ToNodeId)
	}
	key := p.FromNodeId.Key()
	if _, exists := g.edges[key]; !exists {
		g.edgeOrder = append(g.edgeOrder, key)
	}
	list := g.edges[key]
	out := make([]types.Path, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.Id == p.Id || existing.ToNodeId == p.ToNodeId {
			if !replaced {
				out = append(out, p)
				replaced = true
			}
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, p)
	}
	g.edges[key] = out
	return nil
}

// GetPathsFrom returns a copy of the outgoing Path list for from.
func (g *Graph) GetPathsFrom(from types.NodeId) []types.Path {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.edges[from.Key()]
	out := make([]types.Path, len(list))
	copy(out, list)
	return out
}

// FindPathByTarget returns an outgoing Path from `from` whose
// TargetDescription matches target (case-insensitive, exact after
// trimming), if one has already been learned — the lookup
// spec.md scenario S3 requires ("a second call with the same target
// re-reads that Path... without any vision-model call").
func (g *Graph) FindPathByTarget(from types.NodeId, target string) (types.Path, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	needle := normalizeTarget(target)
	for _, p := range g.edges[from.Key()] {
		if normalizeTarget(p.TargetDescription) == needle {
			return p, true
		}
	}
	return types.Path{}, false
}

func normalizeTarget(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GetPath returns the Path from `from` whose ToNodeId equals `to`, if any.
func (g *Graph) GetPath(from, to types.NodeId) (types.Path, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.edges[from.Key()] {
		if p.ToNodeId == to {
			return p, true
		}
	}
	return types.Path{}, false
}

// DeletePath removes the Path identified by pathID from edges[from] — the
// explicit prune operation named in spec.md §3 "Lifecycles" and given a
// keyed signature in SPEC_FULL.md.
func (g *Graph) DeletePath(from types.NodeId, pathID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := from.Key()
	list := g.edges[key]
	out := make([]types.Path, 0, len(list))
	for _, p := range list {
		if p.Id != pathID {
			out = append(out, p)
		}
	}
	g.edges[key] = out
	return g.saveLocked()
}

// Clear empties the graph entirely (nodes, edges, current position) and
// persists the empty state.
func (g *Graph) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = map[string]types.Node{}
	g.edges = map[string][]types.Path{}
	g.nodeOrder = nil
	g.edgeOrder = nil
	g.currentNodeId = nil
	return g.saveLocked()
}

// SetCurrentNodeId records the Brain's current position and persists it.
func (g *Graph) SetCurrentNodeId(id *types.NodeId) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentNodeId = id
	return g.saveLocked()
}

// CurrentNodeId returns the last-recorded current position.
func (g *Graph) CurrentNodeId() *types.NodeId {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentNodeId
}

// Stats computes the SPEC_FULL.md GetGraphStats supplement.
func (g *Graph) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	pathCount := 0
	for _, list := range g.edges {
		pathCount += len(list)
	}
	outgoing := 0
	if g.currentNodeId != nil {
		outgoing = len(g.edges[g.currentNodeId.Key()])
	}
	return Stats{
		NodeCount:            len(g.nodes),
		PathCount:            pathCount,
		CurrentOutgoingPaths: outgoing,
	}
}

// wireDoc is the on-disk shape (spec.md §6): nodes/edges as list-of-pair
// encodings so edge-list (and node) insertion order round-trips exactly
// (property P3), rather than relying on Go map iteration order.
type wireDoc struct {
	Nodes         [][]json.RawMessage `json:"nodes"`
	Edges         [][]json.RawMessage `json:"edges"`
	CurrentNodeId *types.NodeId       `json:"currentNodeId,omitempty"`
	Version       string              `json:"version"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func (g *Graph) encode() ([]byte, error) {
	nodePairs, err := encodePairs(g.nodeOrder, func(key string) (any, bool) {
		v, ok := g.nodes[key]
		return v, ok
	})
	if err != nil {
		return nil, err
	}
	edgePairs, err := encodePairs(g.edgeOrder, func(key string) (any, bool) {
		v, ok := g.edges[key]
		return v, ok
	})
	if err != nil {
		return nil, err
	}

	doc := wireDoc{
		Nodes:         nodePairs,
		Edges:         edgePairs,
		CurrentNodeId: g.currentNodeId,
		Version:       g.version,
		CreatedAt:     g.createdAt,
		UpdatedAt:     g.updatedAt,
	}
	return json.MarshalIndent(&doc, "", "  ")
}

func encodePairs(order []string, lookup func(key string) (any, bool)) ([][]json.RawMessage, error) {
	out := make([][]json.RawMessage, 0, len(order))
	for _, key := range order {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		keyRaw, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valRaw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out = append(out, []json.RawMessage{keyRaw, valRaw})
	}
	return out, nil
}

func (g *Graph) decode(data []byte) error {
	var doc wireDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	nodeOrder := make([]string, 0, len(doc.Nodes))
	nodes := make(map[string]types.Node, len(doc.Nodes))
	for _, pair := range doc.Nodes {
		if len(pair) != 2 {
			return fmt.Errorf("navbrain: malformed node entry")
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return err
		}
		var node types.Node
		if err := json.Unmarshal(pair[1], &node); err != nil {
			return err
		}
		nodes[key] = node
		nodeOrder = append(nodeOrder, key)
	}

	edgeOrder := make([]string, 0, len(doc.Edges))
	edges := make(map[string][]types.Path, len(doc.Edges))
	for _, pair := range doc.Edges {
		if len(pair) != 2 {
			return fmt.Errorf("navbrain: malformed edge entry")
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return err
		}
		var paths []types.Path
		if err := json.Unmarshal(pair[1], &paths); err != nil {
			return err
		}
		edges[key] = paths
		edgeOrder = append(edgeOrder, key)
	}

	g.nodeOrder = nodeOrder
	g.nodes = nodes
	g.edgeOrder = edgeOrder
	g.edges = edges
	g.currentNodeId = doc.CurrentNodeId
	g.version = doc.Version
	g.createdAt = doc.CreatedAt
	g.updatedAt = doc.UpdatedAt
	return nil
}
