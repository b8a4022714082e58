package pass

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/hwir/internal/ir"
)

// ConstructInstanceGraphID is the implicit dependency of every
// InstanceGraphPass.
const ConstructInstanceGraphID = "constructInstanceGraph"

// InstanceGraphNode is one distinct Instantiable reachable from the roots.
type InstanceGraphNode struct {
	target    ir.Instantiable
	instances []*ir.Instance
	callees   []*InstanceGraphNode
	callers   []*InstanceGraphNode
	external  bool
}

// Instantiable returns the module or generator this node stands for.
func (n *InstanceGraphNode) Instantiable() ir.Instantiable { return n.target }

// Handle returns the arena handle of the node's Instantiable.
func (n *InstanceGraphNode) Handle() ir.Handle { return n.target.Handle() }

// Module returns the node's target as a module, if it is one.
func (n *InstanceGraphNode) Module() (*ir.Module, bool) {
	m, ok := n.target.(*ir.Module)
	return m, ok
}

// Generator returns the node's target as a generator, if it is one.
func (n *InstanceGraphNode) Generator() (*ir.Generator, bool) {
	g, ok := n.target.(*ir.Generator)
	return g, ok
}

// Instances returns every use-site of the node's Instantiable, ordered by
// containing module then instance name. Roots have none.
func (n *InstanceGraphNode) Instances() []*ir.Instance { return n.instances }

// Callees returns the distinct Instantiables this node instantiates.
func (n *InstanceGraphNode) Callees() []*InstanceGraphNode { return n.callees }

// Callers returns the distinct nodes that instantiate this one.
func (n *InstanceGraphNode) Callers() []*InstanceGraphNode { return n.callers }

// IsExternal reports whether the Instantiable lives outside the analyzed
// namespace.
func (n *InstanceGraphNode) IsExternal() bool { return n.external }

func (n *InstanceGraphNode) String() string { return n.target.RefName() }

// ConstructInstanceGraph builds the instance graph of a namespace and orders
// it bottom up.
//
// Roots are the context's top module when it belongs to the namespace, and
// every module of the namespace otherwise. Construction recurses through any
// target module that has a definition, across namespaces, so the graph spans
// everything below the roots.
type ConstructInstanceGraph struct {
	Base
	nodes   map[ir.Handle]*InstanceGraphNode
	order   []*InstanceGraphNode
	batches [][]*InstanceGraphNode
	built   bool
}

// NewConstructInstanceGraph creates the instance-graph analysis.
func NewConstructInstanceGraph() *ConstructInstanceGraph {
	return &ConstructInstanceGraph{
		Base: NewBase(ConstructInstanceGraphID, "Constructs the instance graph and its bottom-up order", true),
	}
}

// RunOnNamespace builds the graph. It fails with an INSTANCE_CYCLE error if
// the instance relation has a cycle.
func (p *ConstructInstanceGraph) RunOnNamespace(rc *RunContext, ns *ir.Namespace) (bool, error) {
	p.ReleaseMemory()

	nodes := make(map[ir.Handle]*InstanceGraphNode)
	expanded := make(map[ir.Handle]bool)

	node := func(i ir.Instantiable) *InstanceGraphNode {
		n, ok := nodes[i.Handle()]
		if !ok {
			n = &InstanceGraphNode{target: i, external: i.Namespace() != ns}
			nodes[i.Handle()] = n
		}
		return n
	}

	var expand func(m *ir.Module)
	expand = func(m *ir.Module) {
		if expanded[m.Handle()] {
			return
		}
		expanded[m.Handle()] = true
		caller := node(m)
		if !m.HasDefinition() {
			return
		}
		for _, inst := range m.Definition().Instances() {
			callee := node(inst.Target())
			callee.instances = append(callee.instances, inst)
			if !slices.Contains(caller.callees, callee) {
				caller.callees = append(caller.callees, callee)
				callee.callers = append(callee.callers, caller)
			}
			if tm, ok := inst.Target().(*ir.Module); ok {
				expand(tm)
			}
		}
	}

	for _, root := range graphRoots(ns) {
		expand(root)
	}

	for _, n := range nodes {
		slices.SortFunc(n.callees, compareNodes)
		slices.SortFunc(n.callers, compareNodes)
	}

	order, batches, ok := bottomUp(nodes)
	if !ok {
		path := cyclePath(nodes)
		return false, &ir.Error{
			Code:    ir.ErrCodeCycle,
			Message: "cycle in instance graph: " + strings.Join(path, " -> "),
			Context: []string{"Namespace: " + ns.Name()},
		}
	}

	p.nodes = nodes
	p.order = order
	p.batches = batches
	p.built = true
	rc.Logger().Debug("instance graph built", "nodes", len(order), "batches", len(batches))
	return false, nil
}

func graphRoots(ns *ir.Namespace) []*ir.Module {
	if top := ns.Context().Top(); top != nil && top.Namespace() == ns {
		return []*ir.Module{top}
	}
	return ns.Modules()
}

func compareNodes(a, b *InstanceGraphNode) int {
	return strings.Compare(a.target.RefName(), b.target.RefName())
}

// bottomUp orders nodes callees first with Kahn's algorithm. Each batch holds
// nodes whose callees are all in earlier batches. ok is false on a cycle.
func bottomUp(nodes map[ir.Handle]*InstanceGraphNode) ([]*InstanceGraphNode, [][]*InstanceGraphNode, bool) {
	pending := make(map[*InstanceGraphNode]int, len(nodes))
	var current []*InstanceGraphNode
	for _, n := range nodes {
		pending[n] = len(n.callees)
		if len(n.callees) == 0 {
			current = append(current, n)
		}
	}
	slices.SortFunc(current, compareNodes)

	order := make([]*InstanceGraphNode, 0, len(nodes))
	var batches [][]*InstanceGraphNode
	for len(current) > 0 {
		batches = append(batches, current)
		var next []*InstanceGraphNode
		for _, n := range current {
			order = append(order, n)
			for _, caller := range n.callers {
				pending[caller]--
				if pending[caller] == 0 {
					next = append(next, caller)
				}
			}
		}
		slices.SortFunc(next, compareNodes)
		current = next
	}
	return order, batches, len(order) == len(nodes)
}

// cyclePath finds one cycle with Tarjan's algorithm and returns it as a
// closed path of reference names, e.g. [global.A global.B global.A].
func cyclePath(nodes map[ir.Handle]*InstanceGraphNode) []string {
	var (
		index   = 0
		stack   []*InstanceGraphNode
		indices = make(map[*InstanceGraphNode]int)
		lowlink = make(map[*InstanceGraphNode]int)
		onStack = make(map[*InstanceGraphNode]bool)
		cycle   []*InstanceGraphNode
	)

	var strongConnect func(v *InstanceGraphNode)
	strongConnect = func(v *InstanceGraphNode) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range v.callees {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []*InstanceGraphNode
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if cycle == nil && (len(scc) > 1 || slices.Contains(v.callees, v)) {
				cycle = scc
			}
		}
	}

	sorted := make([]*InstanceGraphNode, 0, len(nodes))
	for _, n := range nodes {
		sorted = append(sorted, n)
	}
	slices.SortFunc(sorted, compareNodes)
	for _, n := range sorted {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	if cycle == nil {
		return nil
	}
	return closeCycle(cycle)
}

// closeCycle walks callee edges inside an SCC from its smallest member back
// to itself.
func closeCycle(scc []*InstanceGraphNode) []string {
	slices.SortFunc(scc, compareNodes)
	start := scc[0]
	members := make(map[*InstanceGraphNode]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	var path []*InstanceGraphNode
	visited := make(map[*InstanceGraphNode]bool)
	var walk func(n *InstanceGraphNode) bool
	walk = func(n *InstanceGraphNode) bool {
		path = append(path, n)
		visited[n] = true
		for _, w := range n.callees {
			if w == start {
				path = append(path, w)
				return true
			}
			if members[w] && !visited[w] && walk(w) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	walk(start)

	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.String()
	}
	return names
}

// SortedNodes returns every node in bottom-up order.
func (p *ConstructInstanceGraph) SortedNodes() []*InstanceGraphNode { return p.order }

// Batches returns the nodes grouped in waves: every callee of a node in wave
// k is in a wave before k. Nodes within a wave share no callee relation.
func (p *ConstructInstanceGraph) Batches() [][]*InstanceGraphNode { return p.batches }

// Node returns the node for handle h.
func (p *ConstructInstanceGraph) Node(h ir.Handle) (*InstanceGraphNode, bool) {
	n, ok := p.nodes[h]
	return n, ok
}

// Built reports whether the graph holds a result.
func (p *ConstructInstanceGraph) Built() bool { return p.built }

// ReleaseMemory drops the graph.
func (p *ConstructInstanceGraph) ReleaseMemory() {
	p.nodes = nil
	p.order = nil
	p.batches = nil
	p.built = false
}

// Print writes one line per node in bottom-up order.
func (p *ConstructInstanceGraph) Print(w io.Writer) error {
	for _, n := range p.order {
		callees := make([]string, len(n.callees))
		for i, c := range n.callees {
			callees[i] = c.String()
		}
		line := n.String()
		if len(callees) > 0 {
			line += " -> " + strings.Join(callees, ", ")
		}
		if n.external {
			line += " [external]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
