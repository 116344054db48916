package service

import (
	"sort"
	"strings"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
)

// BuildTree turns a flat category list into a forest in O(n).
//
// A category whose parent does not resolve within the input (deleted,
// inactive, or never existed) becomes a root. A parent chain that loops back
// on itself is broken by promoting the cycle member that comes first in the
// input to a root, so every input category appears exactly once. Children
// keep input order; callers wanting alphabetical order pass sorted input.
// When ids repeat, the first occurrence wins.
func BuildTree(categories []model.Category) []*model.CategoryNode {
	nodes := make(map[uint]*model.CategoryNode, len(categories))
	position := make(map[uint]int, len(categories))
	order := make([]uint, 0, len(categories))
	for i := range categories {
		id := categories[i].ID
		if _, dup := nodes[id]; dup {
			continue
		}
		nodes[id] = &model.CategoryNode{
			Category: categories[i],
			Children: []*model.CategoryNode{},
		}
		position[id] = i
		order = append(order, id)
	}

	roots := findRoots(nodes, position, order)

	forest := make([]*model.CategoryNode, 0, len(roots))
	for _, id := range order {
		node := nodes[id]
		if roots[id] {
			forest = append(forest, node)
			continue
		}
		parent := nodes[*node.ParentID]
		parent.Children = append(parent.Children, node)
	}
	return forest
}

const (
	unvisited = iota
	walking
	resolved
)

// findRoots marks every node that must hang at the top of the forest. Each
// node is walked at most once across all parent-chain walks.
func findRoots(nodes map[uint]*model.CategoryNode, position map[uint]int, order []uint) map[uint]bool {
	roots := make(map[uint]bool)
	state := make(map[uint]int, len(nodes))

	for _, start := range order {
		var path []uint
		cur := start
		for state[cur] == unvisited {
			state[cur] = walking
			path = append(path, cur)

			parentID := nodes[cur].ParentID
			if parentID == nil {
				roots[cur] = true
				break
			}
			if _, ok := nodes[*parentID]; !ok {
				roots[cur] = true
				break
			}
			cur = *parentID
			if state[cur] == walking {
				roots[earliestInCycle(path, cur, position)] = true
				break
			}
		}
		for _, id := range path {
			state[id] = resolved
		}
	}
	return roots
}

// earliestInCycle returns the member of the cycle that starts at entry and
// ends at the tail of path with the lowest input position.
func earliestInCycle(path []uint, entry uint, position map[uint]int) uint {
	start := 0
	for i, id := range path {
		if id == entry {
			start = i
			break
		}
	}
	best := path[start]
	for _, id := range path[start:] {
		if position[id] < position[best] {
			best = id
		}
	}
	return best
}

// LinearCategories returns every category as a childless node, ordered by name.
func LinearCategories(categories []model.Category) []*model.CategoryNode {
	sorted := make([]model.Category, len(categories))
	copy(sorted, categories)
	sortByName(sorted)

	nodes := make([]*model.CategoryNode, 0, len(sorted))
	for _, c := range sorted {
		nodes = append(nodes, &model.CategoryNode{Category: c, Children: []*model.CategoryNode{}})
	}
	return nodes
}

// FindNode searches the forest depth-first for the node with slug.
func FindNode(forest []*model.CategoryNode, slug string) *model.CategoryNode {
	for _, node := range forest {
		if node.Slug == slug {
			return node
		}
		if found := FindNode(node.Children, slug); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes returns the number of nodes across the forest.
func CountNodes(forest []*model.CategoryNode) int {
	total := 0
	for _, node := range forest {
		total += node.Count()
	}
	return total
}

func sortByName(categories []model.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		a, b := strings.ToLower(categories[i].Name), strings.ToLower(categories[j].Name)
		if a != b {
			return a < b
		}
		return categories[i].Name < categories[j].Name
	})
}
