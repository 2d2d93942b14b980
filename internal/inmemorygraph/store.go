// Package inmemorygraph provides the reference, map-backed implementation of
// the graphstore.Store interface.
//
// A transaction takes a deep copy of the store content on Begin and restores
// it on Rollback, so a rolled-back gesture leaves no trace regardless of how
// many cascading deletes it performed. Committed transactions are reported to
// registered graphstore.CommitObserver values as a graphstore.Batch.
package inmemorygraph

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"lukechampine.com/blake3"
)

// state is everything a rollback has to restore.
type state struct {
	nodes      map[diagram.NodeID]*diagram.Node
	nodeOrder  []diagram.NodeID
	ports      map[diagram.PortID]*diagram.Port
	portOrder  map[diagram.NodeID][]diagram.PortID
	edges      map[diagram.EdgeID]*diagram.Edge
	edgeOrder  []diagram.EdgeID
	labels     map[diagram.LabelID]*diagram.Label
	labelOrder map[string][]diagram.LabelID
}

func newState() *state {
	return &state{
		nodes:      make(map[diagram.NodeID]*diagram.Node),
		ports:      make(map[diagram.PortID]*diagram.Port),
		portOrder:  make(map[diagram.NodeID][]diagram.PortID),
		edges:      make(map[diagram.EdgeID]*diagram.Edge),
		labels:     make(map[diagram.LabelID]*diagram.Label),
		labelOrder: make(map[string][]diagram.LabelID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, n := range s.nodes {
		cp := n.Clone()
		c.nodes[id] = &cp
	}
	c.nodeOrder = slices.Clone(s.nodeOrder)
	for id, p := range s.ports {
		cp := *p
		c.ports[id] = &cp
	}
	for id, order := range s.portOrder {
		c.portOrder[id] = slices.Clone(order)
	}
	for id, e := range s.edges {
		cp := e.Clone()
		c.edges[id] = &cp
	}
	c.edgeOrder = slices.Clone(s.edgeOrder)
	for id, l := range s.labels {
		cp := *l
		c.labels[id] = &cp
	}
	for owner, order := range s.labelOrder {
		c.labelOrder[owner] = slices.Clone(order)
	}
	return c
}

// Option configures a Store.
type Option func(*Store)

// WithSequentialIDs makes the store hand out predictable handles such as
// "node-1" and "edge-3" instead of UUIDs. Two stores built by the same
// sequence of calls then have equal fingerprints.
func WithSequentialIDs() Option {
	return func(s *Store) {
		counters := make(map[string]int)
		s.newID = func(kind string) string {
			counters[kind]++
			return kind + "-" + strconv.Itoa(counters[kind])
		}
	}
}

// Store implements graphstore.Store using maps and a mutex.
type Store struct {
	mu        sync.RWMutex
	st        *state
	tx        *transaction
	observers []graphstore.CommitObserver
	newID     func(kind string) string
}

// New creates a new, empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		st: newState(),
		newID: func(kind string) string {
			return kind + "-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ graphstore.Store = (*Store)(nil)

// Observe registers an observer notified after every commit.
func (s *Store) Observe(o graphstore.CommitObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// --- Reader ---

func (s *Store) Node(id diagram.NodeID) (diagram.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return diagram.Node{}, false
	}
	return n.Clone(), true
}

func (s *Store) Nodes() []diagram.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]diagram.Node, 0, len(s.st.nodeOrder))
	for _, id := range s.st.nodeOrder {
		out = append(out, s.st.nodes[id].Clone())
	}
	return out
}

func (s *Store) Children(id diagram.NodeID) []diagram.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []diagram.Node
	for _, nid := range s.st.nodeOrder {
		if n := s.st.nodes[nid]; n.Parent == id {
			out = append(out, n.Clone())
		}
	}
	return out
}

func (s *Store) Ancestors(id diagram.NodeID) []diagram.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ancestorsLocked(id)
}

func (s *Store) ancestorsLocked(id diagram.NodeID) []diagram.NodeID {
	var out []diagram.NodeID
	n, ok := s.st.nodes[id]
	for ok && n.Parent != "" {
		out = append(out, n.Parent)
		n, ok = s.st.nodes[n.Parent]
	}
	return out
}

func (s *Store) Port(id diagram.PortID) (diagram.Port, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.ports[id]
	if !ok {
		return diagram.Port{}, false
	}
	return *p, true
}

func (s *Store) PortsOf(id diagram.NodeID) []diagram.Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.st.portOrder[id]
	out := make([]diagram.Port, 0, len(order))
	for _, pid := range order {
		out = append(out, *s.st.ports[pid])
	}
	return out
}

func (s *Store) PortOwner(id diagram.PortID) (diagram.NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.ports[id]
	if !ok {
		return "", false
	}
	return p.Owner, true
}

func (s *Store) Edge(id diagram.EdgeID) (diagram.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.st.edges[id]
	if !ok {
		return diagram.Edge{}, false
	}
	return e.Clone(), true
}

func (s *Store) Edges() []diagram.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesWhere(func(*diagram.Edge) bool { return true })
}

func (s *Store) InEdges(id diagram.NodeID) []diagram.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesWhere(func(e *diagram.Edge) bool { return s.ownerOf(e.Target) == id })
}

func (s *Store) OutEdges(id diagram.NodeID) []diagram.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesWhere(func(e *diagram.Edge) bool { return s.ownerOf(e.Source) == id })
}

func (s *Store) EdgesOf(id diagram.NodeID) []diagram.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesWhere(func(e *diagram.Edge) bool {
		return s.ownerOf(e.Source) == id || s.ownerOf(e.Target) == id
	})
}

func (s *Store) Degree(id diagram.NodeID) int {
	return len(s.EdgesOf(id))
}

func (s *Store) edgesWhere(keep func(*diagram.Edge) bool) []diagram.Edge {
	var out []diagram.Edge
	for _, eid := range s.st.edgeOrder {
		if e := s.st.edges[eid]; keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (s *Store) ownerOf(p diagram.PortID) diagram.NodeID {
	if port, ok := s.st.ports[p]; ok {
		return port.Owner
	}
	return ""
}

func (s *Store) Label(id diagram.LabelID) (diagram.Label, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.st.labels[id]
	if !ok {
		return diagram.Label{}, false
	}
	return *l, true
}

func (s *Store) LabelsOf(owner string) []diagram.Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.st.labelOrder[owner]
	out := make([]diagram.Label, 0, len(order))
	for _, lid := range order {
		out = append(out, *s.st.labels[lid])
	}
	return out
}

// snapshot is the canonical, order-independent form hashed by Fingerprint.
type snapshot struct {
	Nodes  []diagram.Node  `json:"nodes"`
	Ports  []diagram.Port  `json:"ports"`
	Edges  []diagram.Edge  `json:"edges"`
	Labels []diagram.Label `json:"labels"`
}

// Fingerprint hashes a canonical JSON rendering of the store with BLAKE3.
func (s *Store) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprintLocked()
}

func (s *Store) fingerprintLocked() string {
	var snap snapshot
	for _, id := range slices.Sorted(maps.Keys(s.st.nodes)) {
		snap.Nodes = append(snap.Nodes, *s.st.nodes[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.st.ports)) {
		snap.Ports = append(snap.Ports, *s.st.ports[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.st.edges)) {
		snap.Edges = append(snap.Edges, *s.st.edges[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.st.labels)) {
		snap.Labels = append(snap.Labels, *s.st.labels[id])
	}
	// encoding/json sorts map keys, so feature maps are canonical too.
	data, err := json.Marshal(snap)
	if err != nil {
		panic(fmt.Errorf("inmemorygraph: fingerprint marshal: %w", err))
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --- Transactions ---

type transaction struct {
	s      *Store
	name   string
	saved  *state
	before string
	ops    []graphstore.Op
	done   bool
}

// Begin opens the store's transaction.
func (s *Store) Begin(name string) (graphstore.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return nil, fmt.Errorf("cannot begin %q while %q is open: %w", name, s.tx.name, graphstore.ErrTransactionOpen)
	}
	s.tx = &transaction{
		s:      s,
		name:   name,
		saved:  s.st.clone(),
		before: s.fingerprintLocked(),
	}
	return s.tx, nil
}

func (s *Store) InTransaction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx != nil
}

func (t *transaction) Name() string { return t.name }

func (t *transaction) Commit() error {
	s := t.s
	s.mu.Lock()
	if t.done || s.tx != t {
		s.mu.Unlock()
		return fmt.Errorf("commit %q: %w", t.name, graphstore.ErrNoTransaction)
	}
	t.done = true
	s.tx = nil
	batch := graphstore.Batch{
		Name:   t.name,
		Ops:    t.ops,
		Before: t.before,
		After:  s.fingerprintLocked(),
	}
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	// Observers run outside the lock so they may read the store.
	var errs []error
	for _, o := range observers {
		if err := o.BatchCommitted(batch); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("commit %q: observers failed: %w", t.name, errors.Join(errs...))
	}
	return nil
}

func (t *transaction) Rollback() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done || s.tx != t {
		return fmt.Errorf("rollback %q: %w", t.name, graphstore.ErrNoTransaction)
	}
	t.done = true
	s.tx = nil
	s.st = t.saved
	return nil
}

func (s *Store) record(kind graphstore.OpKind, id string, before, after any) {
	if s.tx == nil {
		return
	}
	s.tx.ops = append(s.tx.ops, graphstore.Op{Kind: kind, ID: id, Before: before, After: after})
}

// --- Nodes ---

func (s *Store) AddNode(spec graphstore.NodeSpec) (diagram.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec.Parent != "" {
		if _, ok := s.st.nodes[spec.Parent]; !ok {
			return "", fmt.Errorf("parent node '%s': %w", spec.Parent, graphstore.ErrNotFound)
		}
	}
	id := diagram.NodeID(s.newID("node"))
	n := &diagram.Node{
		ID:       id,
		Type:     spec.Type,
		Bounds:   spec.Bounds,
		Parent:   spec.Parent,
		Features: maps.Clone(spec.Features),
	}
	s.st.nodes[id] = n
	s.st.nodeOrder = append(s.st.nodeOrder, id)
	s.record(graphstore.OpAddNode, string(id), nil, n.Clone())
	return id, nil
}

func (s *Store) RemoveNode(id diagram.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return fmt.Errorf("remove node '%s': %w", id, graphstore.ErrNotFound)
	}
	for _, pid := range slices.Clone(s.st.portOrder[id]) {
		s.removePortLocked(pid)
	}
	s.removeLabelsLocked(string(id))
	for _, other := range s.st.nodes {
		if other.Parent == id {
			other.Parent = n.Parent
		}
	}
	delete(s.st.nodes, id)
	delete(s.st.portOrder, id)
	s.st.nodeOrder = slices.DeleteFunc(s.st.nodeOrder, func(x diagram.NodeID) bool { return x == id })
	s.record(graphstore.OpRemoveNode, string(id), n.Clone(), nil)
	return nil
}

func (s *Store) SetParent(id, parent diagram.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return fmt.Errorf("set parent of '%s': %w", id, graphstore.ErrNotFound)
	}
	if parent != "" {
		if _, ok := s.st.nodes[parent]; !ok {
			return fmt.Errorf("set parent of '%s' to '%s': %w", id, parent, graphstore.ErrNotFound)
		}
		if parent == id || slices.Contains(s.ancestorsLocked(parent), id) {
			return fmt.Errorf("set parent of '%s' to '%s': %w", id, parent, graphstore.ErrCyclicParent)
		}
	}
	if n.Parent == parent {
		return nil
	}
	s.record(graphstore.OpSetParent, string(id), n.Parent, parent)
	n.Parent = parent
	return nil
}

func (s *Store) SetBounds(id diagram.NodeID, bounds geom.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return fmt.Errorf("set bounds of '%s': %w", id, graphstore.ErrNotFound)
	}
	if n.Bounds == bounds {
		return nil
	}
	delta := bounds.Center().Sub(n.Bounds.Center())
	for _, pid := range s.st.portOrder[id] {
		p := s.st.ports[pid]
		p.Location = p.Location.Add(delta)
	}
	s.record(graphstore.OpSetBounds, string(id), n.Bounds, bounds)
	n.Bounds = bounds
	return nil
}

func (s *Store) SetNodeType(id diagram.NodeID, t diagram.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return fmt.Errorf("set type of '%s': %w", id, graphstore.ErrNotFound)
	}
	if n.Type == t {
		return nil
	}
	s.record(graphstore.OpSetNodeType, string(id), n.Type, t)
	n.Type = t
	return nil
}

func (s *Store) SetFeature(id diagram.NodeID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return fmt.Errorf("set feature '%s' of '%s': %w", key, id, graphstore.ErrNotFound)
	}
	old := n.Features[key]
	if old == value {
		return nil
	}
	if value == "" {
		delete(n.Features, key)
	} else {
		if n.Features == nil {
			n.Features = make(map[string]string)
		}
		n.Features[key] = value
	}
	s.record(graphstore.OpSetFeature, string(id), map[string]string{key: old}, map[string]string{key: value})
	return nil
}

// --- Ports ---

func (s *Store) AddPort(owner diagram.NodeID, t diagram.Type, at geom.Point) (diagram.PortID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.nodes[owner]; !ok {
		return "", fmt.Errorf("add port to '%s': %w", owner, graphstore.ErrNotFound)
	}
	id := diagram.PortID(s.newID("port"))
	p := &diagram.Port{ID: id, Owner: owner, Type: t, Location: at}
	s.st.ports[id] = p
	s.st.portOrder[owner] = append(s.st.portOrder[owner], id)
	s.record(graphstore.OpAddPort, string(id), nil, *p)
	return id, nil
}

func (s *Store) RemovePort(id diagram.PortID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.ports[id]; !ok {
		return fmt.Errorf("remove port '%s': %w", id, graphstore.ErrNotFound)
	}
	s.removePortLocked(id)
	return nil
}

func (s *Store) removePortLocked(id diagram.PortID) {
	p := s.st.ports[id]
	for _, eid := range slices.Clone(s.st.edgeOrder) {
		if e := s.st.edges[eid]; e.Source == id || e.Target == id {
			s.removeEdgeLocked(eid)
		}
	}
	delete(s.st.ports, id)
	s.st.portOrder[p.Owner] = slices.DeleteFunc(s.st.portOrder[p.Owner], func(x diagram.PortID) bool { return x == id })
	s.record(graphstore.OpRemovePort, string(id), *p, nil)
}

// --- Edges ---

func (s *Store) AddEdge(t diagram.Type, source, target diagram.PortID) (diagram.EdgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.ports[source]; !ok {
		return "", fmt.Errorf("edge source port '%s': %w", source, graphstore.ErrNotFound)
	}
	if _, ok := s.st.ports[target]; !ok {
		return "", fmt.Errorf("edge target port '%s': %w", target, graphstore.ErrNotFound)
	}
	id := diagram.EdgeID(s.newID("edge"))
	e := &diagram.Edge{ID: id, Type: t, Source: source, Target: target}
	s.st.edges[id] = e
	s.st.edgeOrder = append(s.st.edgeOrder, id)
	s.record(graphstore.OpAddEdge, string(id), nil, e.Clone())
	return id, nil
}

func (s *Store) RemoveEdge(id diagram.EdgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.edges[id]; !ok {
		return fmt.Errorf("remove edge '%s': %w", id, graphstore.ErrNotFound)
	}
	s.removeEdgeLocked(id)
	return nil
}

func (s *Store) removeEdgeLocked(id diagram.EdgeID) {
	e := s.st.edges[id]
	s.removeLabelsLocked(string(id))
	delete(s.st.edges, id)
	s.st.edgeOrder = slices.DeleteFunc(s.st.edgeOrder, func(x diagram.EdgeID) bool { return x == id })
	s.record(graphstore.OpRemoveEdge, string(id), e.Clone(), nil)
}

func (s *Store) SetEdgeType(id diagram.EdgeID, t diagram.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.edges[id]
	if !ok {
		return fmt.Errorf("set type of edge '%s': %w", id, graphstore.ErrNotFound)
	}
	if e.Type == t {
		return nil
	}
	s.record(graphstore.OpSetEdgeType, string(id), e.Type, t)
	e.Type = t
	return nil
}

func (s *Store) SetEdgeEndpoints(id diagram.EdgeID, source, target diagram.PortID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.edges[id]
	if !ok {
		return fmt.Errorf("set endpoints of edge '%s': %w", id, graphstore.ErrNotFound)
	}
	if _, ok := s.st.ports[source]; !ok {
		return fmt.Errorf("set endpoints of edge '%s': source port '%s': %w", id, source, graphstore.ErrNotFound)
	}
	if _, ok := s.st.ports[target]; !ok {
		return fmt.Errorf("set endpoints of edge '%s': target port '%s': %w", id, target, graphstore.ErrNotFound)
	}
	s.record(graphstore.OpSetEndpoints, string(id),
		[2]diagram.PortID{e.Source, e.Target}, [2]diagram.PortID{source, target})
	e.Source, e.Target = source, target
	return nil
}

func (s *Store) ReverseEdge(id diagram.EdgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.edges[id]
	if !ok {
		return fmt.Errorf("reverse edge '%s': %w", id, graphstore.ErrNotFound)
	}
	e.Source, e.Target = e.Target, e.Source
	slices.Reverse(e.Bends)
	s.record(graphstore.OpReverseEdge, string(id), nil, nil)
	return nil
}

func (s *Store) SetEdgeBends(id diagram.EdgeID, bends []geom.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.edges[id]
	if !ok {
		return fmt.Errorf("set bends of edge '%s': %w", id, graphstore.ErrNotFound)
	}
	s.record(graphstore.OpSetBends, string(id), slices.Clone(e.Bends), slices.Clone(bends))
	e.Bends = slices.Clone(bends)
	return nil
}

// --- Labels ---

func (s *Store) AddLabel(owner string, t diagram.Type, text string) (diagram.LabelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, isNode := s.st.nodes[diagram.NodeID(owner)]
	_, isEdge := s.st.edges[diagram.EdgeID(owner)]
	if !isNode && !isEdge {
		return "", fmt.Errorf("label owner '%s': %w", owner, graphstore.ErrNotFound)
	}
	id := diagram.LabelID(s.newID("label"))
	l := &diagram.Label{ID: id, Owner: owner, Type: t, Text: text}
	s.st.labels[id] = l
	s.st.labelOrder[owner] = append(s.st.labelOrder[owner], id)
	s.record(graphstore.OpAddLabel, string(id), nil, *l)
	return id, nil
}

func (s *Store) SetLabelText(id diagram.LabelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.labels[id]
	if !ok {
		return fmt.Errorf("set text of label '%s': %w", id, graphstore.ErrNotFound)
	}
	if l.Text == text {
		return nil
	}
	s.record(graphstore.OpSetLabelText, string(id), l.Text, text)
	l.Text = text
	return nil
}

func (s *Store) removeLabelsLocked(owner string) {
	for _, lid := range s.st.labelOrder[owner] {
		delete(s.st.labels, lid)
	}
	delete(s.st.labelOrder, owner)
}
