// Package digittrie implements a radix trie keyed by digit sequences.
//
// It is used to map a numeric oracle outcome, expressed as digits in a fixed
// base, to the payload pre-computed for the range of values covering it.
// Stored paths must partition the digit space: no stored path may be a prefix
// of another one.
package digittrie

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyPath      = errors.New("digit path must not be empty")
	ErrPrefixConflict = errors.New("digit path overlaps a stored path")
	ErrNotFound       = errors.New("no stored path matches digits")
)

const rootIndex = 0

type node[T any] struct {
	edge     []int
	children map[int]int
	leaf     bool
	value    T
}

// Entry is a stored path with its payload.
type Entry[T any] struct {
	Path  []int
	Value T
}

// Trie is an arena of nodes referenced by index. Node 0 is the root and is
// never a leaf.
type Trie[T any] struct {
	base  int
	size  int
	nodes []node[T]
}

func New[T any](base int) (*Trie[T], error) {
	if base < 2 {
		return nil, fmt.Errorf("invalid base %d, must be at least 2", base)
	}
	return &Trie[T]{
		base:  base,
		nodes: []node[T]{{children: make(map[int]int)}},
	}, nil
}

func (t *Trie[T]) Base() int {
	return t.base
}

// Len returns the number of stored paths.
func (t *Trie[T]) Len() int {
	return t.size
}

// Insert stores value at path. Inserting an already stored path replaces its
// value. Inserting a path that is a strict prefix of a stored path, or that
// has a stored path as strict prefix, fails with ErrPrefixConflict.
func (t *Trie[T]) Insert(path []int, value T) error {
	if err := t.validate(path); err != nil {
		return err
	}

	cur, i := rootIndex, 0
	for {
		if t.nodes[cur].leaf {
			if i == len(path) {
				t.nodes[cur].value = value
				return nil
			}
			return fmt.Errorf("%w: %v", ErrPrefixConflict, path)
		}
		if i == len(path) {
			return fmt.Errorf("%w: %v", ErrPrefixConflict, path)
		}

		childIndex, ok := t.nodes[cur].children[path[i]]
		if !ok {
			leaf := t.newLeaf(path[i:], value)
			t.nodes[cur].children[path[i]] = leaf
			t.size++
			return nil
		}

		edge := t.nodes[childIndex].edge
		common := commonPrefixLen(edge, path[i:])
		if common == len(edge) {
			cur = childIndex
			i += common
			continue
		}
		if i+common == len(path) {
			return fmt.Errorf("%w: %v", ErrPrefixConflict, path)
		}

		// Split the child edge at the first diverging digit.
		branch := t.newBranch(edge[:common])
		t.nodes[childIndex].edge = edge[common:]
		t.nodes[branch].children[edge[common]] = childIndex

		suffix := path[i+common:]
		leaf := t.newLeaf(suffix, value)
		t.nodes[branch].children[suffix[0]] = leaf
		t.nodes[cur].children[path[i]] = branch
		t.size++
		return nil
	}
}

// Lookup returns the value of the stored path matching the longest prefix of
// digits. Digits following a matched leaf are ignored.
func (t *Trie[T]) Lookup(digits []int) (T, error) {
	var zero T

	cur, i := rootIndex, 0
	for {
		if t.nodes[cur].leaf {
			return t.nodes[cur].value, nil
		}
		if i == len(digits) {
			return zero, fmt.Errorf("%w: %v", ErrNotFound, digits)
		}

		childIndex, ok := t.nodes[cur].children[digits[i]]
		if !ok {
			return zero, fmt.Errorf("%w: %v", ErrNotFound, digits)
		}
		edge := t.nodes[childIndex].edge
		if len(digits)-i < len(edge) ||
			commonPrefixLen(edge, digits[i:]) != len(edge) {
			return zero, fmt.Errorf("%w: %v", ErrNotFound, digits)
		}

		cur = childIndex
		i += len(edge)
	}
}

// Explore returns every stored entry ordered by path.
func (t *Trie[T]) Explore() []Entry[T] {
	entries := make([]Entry[T], 0, t.size)
	t.explore(rootIndex, nil, &entries)
	return entries
}

func (t *Trie[T]) explore(index int, prefix []int, entries *[]Entry[T]) {
	n := t.nodes[index]
	path := append(append([]int{}, prefix...), n.edge...)
	if n.leaf {
		*entries = append(*entries, Entry[T]{Path: path, Value: n.value})
		return
	}

	digits := make([]int, 0, len(n.children))
	for d := range n.children {
		digits = append(digits, d)
	}
	sort.Ints(digits)
	for _, d := range digits {
		t.explore(n.children[d], path, entries)
	}
}

func (t *Trie[T]) validate(path []int) error {
	if len(path) <= 0 {
		return ErrEmptyPath
	}
	for _, d := range path {
		if d < 0 || d >= t.base {
			return fmt.Errorf("invalid digit %d for base %d", d, t.base)
		}
	}
	return nil
}

func (t *Trie[T]) newLeaf(edge []int, value T) int {
	t.nodes = append(t.nodes, node[T]{
		edge:  append([]int{}, edge...),
		leaf:  true,
		value: value,
	})
	return len(t.nodes) - 1
}

func (t *Trie[T]) newBranch(edge []int) int {
	t.nodes = append(t.nodes, node[T]{
		edge:     append([]int{}, edge...),
		children: make(map[int]int),
	})
	return len(t.nodes) - 1
}

func commonPrefixLen(a, b []int) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
