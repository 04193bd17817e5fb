package tree

import (
	"fmt"
	"strings"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/logger"
)

// Node wraps one metadata record with its resolved hierarchy links.
type Node struct {
	Record   *metadata.Record
	Parent   *Node
	Children []*Node
}

// Tree is the reconstructed directory hierarchy of one partition. A
// record whose parent cannot be resolved hangs under the synthetic
// orphans node instead of being dropped.
type Tree struct {
	root    *Node
	orphans *Node
	nodes   map[uint64]*Node
}

// Build resolves every record's parent reference by identifier lookup.
// A record referencing itself is the root, unresolvable parents and
// cycles produce orphans, never recursion.
func Build(records metadata.Records) *Tree {
	t := &Tree{
		orphans: &Node{Record: &metadata.Record{Name: "$Orphans", Dir: true, Orphaned: true}},
		nodes:   make(map[uint64]*Node, len(records)),
	}

	ordered := make([]*Node, 0, len(records))
	for idx := range records {
		record := &records[idx]
		if _, exists := t.nodes[record.Id]; exists {
			logger.Phoenixlogger.Warning(fmt.Sprintf("duplicate record id %d, keeping the first", record.Id))
			continue
		}
		node := &Node{Record: record}
		t.nodes[record.Id] = node
		ordered = append(ordered, node)
	}

	//attachment follows record order so repeated scans of the same volume
	//walk siblings identically
	for _, node := range ordered {
		if node.Record.Id == node.Record.ParentId { //self reference marks the root
			if t.root == nil {
				t.root = node
			} else {
				t.adopt(node)
			}
			continue
		}
		parent, ok := t.nodes[node.Record.ParentId]
		if !ok {
			t.adopt(node)
			continue
		}
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	if t.root == nil {
		t.root = &Node{Record: &metadata.Record{Dir: true}}
	}
	t.breakCycles(ordered)
	return t
}

// adopt moves a node under the synthetic orphans root.
func (t *Tree) adopt(node *Node) {
	node.Record.Orphaned = true
	node.Parent = t.orphans
	t.orphans.Children = append(t.orphans.Children, node)
}

// breakCycles walks each node's ancestor chain, a node seen twice on its
// own chain is detached at the second occurrence and orphaned. Starting
// points follow record order so the detached node is the same every run.
func (t *Tree) breakCycles(ordered []*Node) {
	for _, start := range ordered {
		seen := make(map[*Node]bool)
		node := start
		for node != nil && node != t.root && node != t.orphans {
			if seen[node] {
				t.detach(node)
				break
			}
			seen[node] = true
			node = node.Parent
		}
	}
}

func (t *Tree) detach(node *Node) {
	logger.Phoenixlogger.Warning(fmt.Sprintf("cycle through record %d (%s), detached",
		node.Record.Id, node.Record.GetFname()))
	if node.Parent != nil {
		siblings := node.Parent.Children
		for idx, sibling := range siblings {
			if sibling == node {
				node.Parent.Children = append(siblings[:idx], siblings[idx+1:]...)
				break
			}
		}
	}
	t.adopt(node)
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) Orphans() *Node {
	return t.orphans
}

func (t *Tree) GetNode(id uint64) *Node {
	return t.nodes[id]
}

// FullPath joins the names from the root down to the node. The walk is
// bounded by the node count, cycles were already broken at build time.
func (t *Tree) FullPath(node *Node) string {
	var parts []string
	for steps := 0; node != nil && steps <= len(t.nodes)+1; steps++ {
		name := node.Record.Name
		if node == t.root {
			break
		}
		if name != "" {
			parts = append(parts, name)
		}
		node = node.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// Walk visits every node depth first starting at the root, then the
// orphans. The visit order of siblings follows record order.
func (t *Tree) Walk(visit func(*Node, string)) {
	t.walkNode(t.root, visit)
	t.walkNode(t.orphans, visit)
}

func (t *Tree) walkNode(node *Node, visit func(*Node, string)) {
	if node == nil {
		return
	}
	visit(node, t.FullPath(node))
	for _, child := range node.Children {
		t.walkNode(child, visit)
	}
}
