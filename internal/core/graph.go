package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrUnknownBuild is returned when a Version is not present in the graph.
var ErrUnknownBuild = errors.New("unknown build")

// ErrNoRoute is returned by PatchesNeeded when no patch chain connects two
// known builds.
var ErrNoRoute = errors.New("no patch route between builds")

// buildNode adapts a Build to gonum's graph.Node interface so it can be
// stored as a vertex in a simple.WeightedUndirectedGraph.
type buildNode struct {
	id    int64
	build Build
}

func (n *buildNode) ID() int64 { return n.id }

// PatchGraph is an undirected weighted graph of Builds (nodes) and Patches
// (edges), annotated with per-entity locality. Edge weight is the Patch's
// stored size. Node identity is keyed by Version, not by gonum's int64 IDs;
// the auxiliary map below bridges that gap, since gonum's
// simple.WeightedUndirectedGraph only knows int64 node identities.
type PatchGraph struct {
	g *simple.WeightedUndirectedGraph

	nodeByVersion map[string]int64
	nextID        int64

	logger *slog.Logger
}

// NewPatchGraph returns an empty graph. logger may be nil, in which case a
// discard logger is used.
func NewPatchGraph(logger *slog.Logger) *PatchGraph {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PatchGraph{
		g:             simple.NewWeightedUndirectedGraph(0, 0),
		nodeByVersion: make(map[string]int64),
		logger:        logger,
	}
}

// UpdateFromFileList partitions entries by file-name suffix into builds
// (`.tar.zst`) and patches (`.patch.zst`), skipping anything that looks like
// a directory entry, then upserts each into the graph under location. Builds
// are applied in a first pass and patches in a second, since a patch's
// endpoint builds must already be nodes before AddPatch can create the edge
// and directory listings sort patch names ahead of their own endpoints
// (`-` sorts before `.`). Failures to add a patch (missing endpoint builds)
// are logged and skipped; failures to add a build propagate immediately.
func (pg *PatchGraph) UpdateFromFileList(entries []Entry, location StorageKind) error {
	var patchEntries []Entry

	for _, e := range entries {
		if strings.HasSuffix(e.Path, "/") {
			continue
		}
		base := e.Path
		switch {
		case strings.HasSuffix(base, ".tar.zst"):
			v, err := BuildVersionFromPath(base)
			if err != nil {
				return fmt.Errorf("parse build version from `%s`: %w", base, err)
			}
			if err := pg.AddBuild(v, e, location); err != nil {
				return fmt.Errorf("add build `%s`: %w", v, err)
			}
		case strings.HasSuffix(base, ".patch.zst"):
			patchEntries = append(patchEntries, e)
		}
	}

	for _, e := range patchEntries {
		from, to, err := PatchVersionsFromPath(e.Path)
		if err != nil {
			pg.logger.Warn("skipping patch with unparseable name", "path", e.Path, "error", err)
			continue
		}
		if err := pg.AddPatch(from, to, e, location); err != nil {
			pg.logger.Warn("skipping patch with missing endpoint build", "path", e.Path, "error", err)
			continue
		}
	}
	return nil
}

// AddBuild upserts a Build by Version, setting local or remote according to
// location.
func (pg *PatchGraph) AddBuild(v Version, entry Entry, location StorageKind) error {
	id, ok := pg.nodeByVersion[v.String()]
	if !ok {
		id = pg.nextID
		pg.nextID++
		b := NewBuild(v)
		b = setBuildLocation(b, entry, location)
		pg.g.AddNode(&buildNode{id: id, build: b})
		pg.nodeByVersion[v.String()] = id
		return nil
	}
	n := pg.g.Node(id).(*buildNode)
	n.build = setBuildLocation(n.build, entry, location)
	return nil
}

func setBuildLocation(b Build, entry Entry, location StorageKind) Build {
	switch location {
	case StorageLocal:
		return b.SetLocal(entry)
	case StorageRemote:
		return b.SetRemote(entry)
	default:
		return b
	}
}

func setPatchLocation(p Patch, entry Entry, location StorageKind) Patch {
	switch location {
	case StorageLocal:
		return p.SetLocal(entry)
	case StorageRemote:
		return p.SetRemote(entry)
	default:
		return p
	}
}

// AddPatch upserts a Patch by (from, to). If the edge is new, both endpoint
// Builds MUST already exist in the graph.
func (pg *PatchGraph) AddPatch(from, to Version, entry Entry, location StorageKind) error {
	fromID, ok := pg.nodeByVersion[from.String()]
	if !ok {
		return fmt.Errorf("can't find prev build `%s` for patch `%s`->`%s`", from, from, to)
	}
	toID, ok := pg.nodeByVersion[to.String()]
	if !ok {
		return fmt.Errorf("can't find next build `%s` for patch `%s`->`%s`", to, from, to)
	}

	p, existed := pg.edgePatch(from, to)
	if !existed {
		p = NewPatch(from, to)
	}
	p = setPatchLocation(p, entry, location)

	weight, err := p.Size()
	if err != nil {
		return fmt.Errorf("patch `%s`->`%s` has no usable size: %w", from, to, err)
	}
	pg.g.SetWeightedEdge(patchWeightedEdge{
		f: pg.g.Node(fromID),
		t: pg.g.Node(toID),
		w: float64(weight),
		p: p,
	})
	return nil
}

// patchWeightedEdge implements graph.WeightedEdge, carrying the Patch
// payload alongside the endpoints gonum needs.
type patchWeightedEdge struct {
	f, t graph.Node
	w    float64
	p    Patch
}

func (e patchWeightedEdge) From() graph.Node         { return e.f }
func (e patchWeightedEdge) To() graph.Node           { return e.t }
func (e patchWeightedEdge) ReversedEdge() graph.Edge { return patchWeightedEdge{f: e.t, t: e.f, w: e.w, p: e.p} }
func (e patchWeightedEdge) Weight() float64          { return e.w }

// edgePatch fetches the live Patch payload for the edge between from and to.
func (pg *PatchGraph) edgePatch(from, to Version) (Patch, bool) {
	fromID, ok := pg.nodeByVersion[from.String()]
	if !ok {
		return Patch{}, false
	}
	toID, ok := pg.nodeByVersion[to.String()]
	if !ok {
		return Patch{}, false
	}
	we := pg.g.WeightedEdge(fromID, toID)
	if we == nil {
		return Patch{}, false
	}
	pe, ok := we.(patchWeightedEdge)
	if !ok {
		return Patch{}, false
	}
	return pe.p, true
}

// HasBuild reports whether v is a known node.
func (pg *PatchGraph) HasBuild(v Version) bool {
	_, ok := pg.nodeByVersion[v.String()]
	return ok
}

// HasLocalBuild reports whether v is known and has a local Entry.
func (pg *PatchGraph) HasLocalBuild(v Version) bool {
	b, ok := pg.buildByVersion(v)
	return ok && b.HasLocal()
}

// HasPatch reports whether an edge from -> to exists.
func (pg *PatchGraph) HasPatch(from, to Version) bool {
	_, ok := pg.edgePatch(from, to)
	return ok
}

// LocalBuild returns the Build for v if known.
func (pg *PatchGraph) LocalBuild(v Version) (Build, error) {
	b, ok := pg.buildByVersion(v)
	if !ok {
		return Build{}, fmt.Errorf("%w: `%s`", ErrUnknownBuild, v)
	}
	return b, nil
}

// RemoteBuild is an alias of LocalBuild: both locality variants live on the
// same Build record; callers inspect HasLocal/HasRemote on the result.
func (pg *PatchGraph) RemoteBuild(v Version) (Build, error) {
	return pg.LocalBuild(v)
}

func (pg *PatchGraph) buildByVersion(v Version) (Build, bool) {
	id, ok := pg.nodeByVersion[v.String()]
	if !ok {
		return Build{}, false
	}
	n, ok := pg.g.Node(id).(*buildNode)
	if !ok {
		return Build{}, false
	}
	return n.build, true
}

// AllBuilds returns every Build known to the graph, local or remote, in no
// particular order. Intended for diagnostic dumps (`artefacta debug`).
func (pg *PatchGraph) AllBuilds() []Build {
	var out []Build
	nodes := pg.g.Nodes()
	for nodes.Next() {
		n := nodes.Node().(*buildNode)
		out = append(out, n.build)
	}
	return out
}

// AllPatches returns every Patch known to the graph, local or remote, in no
// particular order. Intended for diagnostic dumps (`artefacta debug`).
func (pg *PatchGraph) AllPatches() []Patch {
	var out []Patch
	edges := pg.g.Edges()
	for edges.Next() {
		we, ok := edges.Edge().(patchWeightedEdge)
		if !ok {
			continue
		}
		out = append(out, we.p)
	}
	return out
}

// LocalOnlyBuilds returns every Build with a local Entry but no remote one.
func (pg *PatchGraph) LocalOnlyBuilds() []Build {
	var out []Build
	nodes := pg.g.Nodes()
	for nodes.Next() {
		n := nodes.Node().(*buildNode)
		if n.build.HasLocal() && !n.build.HasRemote() {
			out = append(out, n.build)
		}
	}
	return out
}

// LocalOnlyPatches returns every Patch with a local Entry but no remote one.
func (pg *PatchGraph) LocalOnlyPatches() []Patch {
	var out []Patch
	edges := pg.g.Edges()
	for edges.Next() {
		we, ok := edges.Edge().(patchWeightedEdge)
		if !ok {
			continue
		}
		if we.p.HasLocal() && !we.p.HasRemote() {
			out = append(out, we.p)
		}
	}
	return out
}

// PatchesNeeded finds the cheapest ordered sequence of Patches connecting
// from to to, using Dijkstra's algorithm (a zero-heuristic A* search) over
// edge weight = Patch.Size(). Returns ErrNoRoute if no such sequence exists.
func (pg *PatchGraph) PatchesNeeded(from, to Version) (totalCost int64, patches []Patch, err error) {
	fromID, ok := pg.nodeByVersion[from.String()]
	if !ok {
		return 0, nil, fmt.Errorf("%w: `%s`", ErrUnknownBuild, from)
	}
	toID, ok := pg.nodeByVersion[to.String()]
	if !ok {
		return 0, nil, fmt.Errorf("%w: `%s`", ErrUnknownBuild, to)
	}

	shortest := path.DijkstraFrom(pg.g.Node(fromID), pg.g)
	nodes, weight := shortest.To(toID)
	if len(nodes) == 0 {
		return 0, nil, fmt.Errorf("%w: `%s` -> `%s`", ErrNoRoute, from, to)
	}

	patches = make([]Patch, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		fromNode := nodes[i].(*buildNode)
		toNode := nodes[i+1].(*buildNode)
		p, ok := pg.edgePatch(fromNode.build.Version, toNode.build.Version)
		if !ok {
			return 0, nil, fmt.Errorf("internal inconsistency: no patch payload for edge `%s`->`%s`", fromNode.build.Version, toNode.build.Version)
		}
		patches = append(patches, p)
	}
	return int64(weight), patches, nil
}

// UpgradeKind distinguishes the two strategies FindUpgradePath may choose.
type UpgradeKind int

const (
	UpgradeInstallBuild UpgradeKind = iota
	UpgradeApplyPatches
)

// UpgradePath is the planner's decision: either install the target Build
// directly, or apply an ordered sequence of Patches to reach it.
type UpgradePath struct {
	Kind    UpgradeKind
	Build   Build
	Patches []Patch
}

// FindUpgradePath chooses the cheaper of installing the target Build
// outright or applying the cheapest patch chain, strictly preferring the
// patch chain only when it undercuts the build size.
func (pg *PatchGraph) FindUpgradePath(from, to Version) (UpgradePath, error) {
	targetBuild, ok := pg.buildByVersion(to)
	if !ok {
		return UpgradePath{}, fmt.Errorf("%w: `%s`", ErrUnknownBuild, to)
	}
	if !pg.HasBuild(from) {
		return UpgradePath{}, fmt.Errorf("%w: `%s`", ErrUnknownBuild, from)
	}

	buildSize, err := targetBuild.Size()
	if err != nil {
		return UpgradePath{}, fmt.Errorf("target build `%s`: %w", to, err)
	}

	patchCost, patches, err := pg.PatchesNeeded(from, to)
	if err != nil {
		if errors.Is(err, ErrNoRoute) {
			return UpgradePath{Kind: UpgradeInstallBuild, Build: targetBuild}, nil
		}
		return UpgradePath{}, err
	}

	if patchCost < buildSize {
		return UpgradePath{Kind: UpgradeApplyPatches, Patches: patches}, nil
	}
	return UpgradePath{Kind: UpgradeInstallBuild, Build: targetBuild}, nil
}
