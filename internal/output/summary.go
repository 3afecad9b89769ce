package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/maxvaer/zrprobe/internal/classify"
)

// maxListed caps the hosts printed under one category.
const maxListed = 10

type treeNode struct {
	name     string
	paint    *color.Color
	children []*treeNode
}

func (n *treeNode) add(name string, paint *color.Color) *treeNode {
	child := &treeNode{name: name, paint: paint}
	n.children = append(n.children, child)
	return child
}

// PrintSummary renders the categorized hosts as a tree, richest category
// first. Dead hosts are only counted. colors may be nil.
func PrintSummary(w io.Writer, byCat map[classify.Category][]classify.Record, resumed int, colors map[classify.Category]*color.Color) {
	root := &treeNode{}
	for _, cat := range classify.All {
		recs := byCat[cat]
		if len(recs) == 0 {
			continue
		}
		node := root.add(fmt.Sprintf("%s (%d)", cat, len(recs)), colors[cat])
		if cat == classify.Dead {
			continue
		}
		for i, rec := range recs {
			if i == maxListed {
				node.add(fmt.Sprintf("... and %d more", len(recs)-maxListed), nil)
				break
			}
			node.add(rec.Host, nil)
		}
	}
	if resumed > 0 {
		root.add(fmt.Sprintf("resumed accessible (%d)", resumed), nil)
	}
	if len(root.children) == 0 {
		return
	}

	fmt.Fprintf(w, "\n  Categories:\n")
	printChildren(w, root, "  ")
}

func printChildren(w io.Writer, node *treeNode, prefix string) {
	for i, child := range node.children {
		isLast := i == len(node.children)-1
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		name := child.name
		if child.paint != nil {
			name = child.paint.Sprint(name)
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, name)
		nextPrefix := prefix + "│   "
		if isLast {
			nextPrefix = prefix + "    "
		}
		printChildren(w, child, nextPrefix)
	}
}
