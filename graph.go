package rebind

import (
	"fmt"
	"sort"
	"strings"
)

// TypeGraph owns the validated mapping from type name to TypeConfig.
//
// A graph is built once at process startup (or on explicit schema change)
// and is immutable afterwards; schema refresh is build-then-swap, never
// mutate-in-place, so concurrent readers never observe a half-built
// graph. Construction runs the full validation pipeline and fails on the
// first violation - callers never receive a partially valid graph.
type TypeGraph struct {
	types map[string]TypeConfig

	// typeByModel maps a bound model name to its type name, for
	// resolving application records to object references.
	typeByModel map[string]string
}

// NewTypeGraph normalizes and validates raw configuration into a graph.
//
// Validation order (first failure aborts):
//  1. parent existence
//  2. parent-cycle freedom
//  3. relation subject resolution
//  4. permission expression validity
//  5. binding validity
func NewTypeGraph(cfg Config) (*TypeGraph, error) {
	g := &TypeGraph{
		types:       make(map[string]TypeConfig, len(cfg)),
		typeByModel: make(map[string]string),
	}

	for name, spec := range cfg {
		tc, err := normalizeType(name, spec)
		if err != nil {
			return nil, err
		}
		g.types[name] = tc
		if tc.Model != "" {
			g.typeByModel[tc.Model] = name
		}
	}

	if err := g.validateParents(); err != nil {
		return nil, err
	}
	if err := g.validateParentCycles(); err != nil {
		return nil, err
	}
	if err := g.validateRelationSubjects(); err != nil {
		return nil, err
	}
	if err := g.validatePermissionExpressions(); err != nil {
		return nil, err
	}
	if err := g.validateBindings(); err != nil {
		return nil, err
	}

	return g, nil
}

// Types returns the graph's type names in sorted order.
func (g *TypeGraph) Types() []string {
	names := make([]string, 0, len(g.types))
	for name := range g.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Type returns the config for a type name.
func (g *TypeGraph) Type(name string) (TypeConfig, bool) {
	tc, ok := g.types[name]
	return tc, ok
}

// TypeForModel returns the type name bound to a model name.
func (g *TypeGraph) TypeForModel(model string) (string, bool) {
	name, ok := g.typeByModel[model]
	return name, ok
}

// ------------------------------------------------------------ validation

func (g *TypeGraph) validateParents() error {
	for _, name := range g.Types() {
		for _, parent := range g.types[name].Parents {
			if _, ok := g.types[parent]; !ok {
				return fmt.Errorf("%w: type %q references unknown parent %q",
					ErrUnknownParent, name, parent)
			}
		}
	}
	return nil
}

// color represents the state of a node during DFS cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path (cycle if revisited)
	black              // fully processed
)

// validateParentCycles checks that the parent graph is a DAG using DFS
// with three-color marking. Self-parenting counts as a cycle of length 1.
func (g *TypeGraph) validateParentCycles() error {
	colors := make(map[string]color, len(g.types))
	parent := make(map[string]string)

	var dfs func(name string) []string
	dfs = func(name string) []string {
		colors[name] = gray
		for _, next := range g.types[name].Parents {
			switch colors[next] {
			case gray:
				return reconstructCycle(name, next, parent)
			case white:
				parent[next] = name
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		colors[name] = black
		return nil
	}

	for _, name := range g.Types() {
		if colors[name] == white {
			if cycle := dfs(name); cycle != nil {
				return fmt.Errorf("%w: %s", ErrParentCycle, strings.Join(cycle, " -> "))
			}
		}
	}
	return nil
}

// reconstructCycle builds the cycle path from parent pointers.
// from is the node where the back-edge was found, to is the node it
// returns to.
func reconstructCycle(from, to string, parent map[string]string) []string {
	cycle := []string{to}
	for n := from; n != to; n = parent[n] {
		cycle = append([]string{n}, cycle...)
	}
	return append([]string{to}, cycle...)
}

func (g *TypeGraph) validateRelationSubjects() error {
	for _, name := range g.Types() {
		tc := g.types[name]
		for relation, subject := range tc.Relations {
			// The portion before an optional #relation suffix must name
			// a known type.
			subjectType, _, _ := strings.Cut(subject, "#")
			if _, ok := g.types[subjectType]; !ok {
				return fmt.Errorf("%w: relation %s.%s points to unknown type %q",
					ErrUnknownSubject, name, relation, subjectType)
			}
		}
	}
	return nil
}

func (g *TypeGraph) validatePermissionExpressions() error {
	for _, name := range g.Types() {
		tc := g.types[name]
		known := make(map[string]bool, len(tc.Relations)+len(tc.Permissions))
		for rel := range tc.Relations {
			known[rel] = true
		}
		for perm := range tc.Permissions {
			known[perm] = true
		}
		for perm, expr := range tc.Permissions {
			for _, token := range tokenizeExpression(expr) {
				switch token {
				case "|", "&", "(", ")", "!":
					continue
				}
				if !known[token] {
					return fmt.Errorf("%w: permission %s.%s references unknown token %q",
						ErrInvalidExpression, name, perm, token)
				}
			}
		}
	}
	return nil
}

func (g *TypeGraph) validateBindings() error {
	for _, name := range g.Types() {
		tc := g.types[name]
		for relation, binding := range tc.Bindings {
			if _, ok := tc.Relations[relation]; !ok {
				return fmt.Errorf("%w: type %q binds undeclared relation %q",
					ErrInvalidBinding, name, relation)
			}
			if !binding.Kind.valid() {
				return fmt.Errorf("%w: type %q relation %q has unknown kind %q",
					ErrInvalidBinding, name, relation, binding.Kind)
			}
		}
	}
	return nil
}

// ------------------------------------------------------------- tokenizer

// tokenizeExpression splits a permission expression into name and
// operator tokens. The -> arrow is a unary separator: "parent->view"
// yields "parent" and "view" as independent tokens. Operators | & ( ) !
// are emitted as their own tokens; whitespace is dropped.
func tokenizeExpression(expr string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		// Strip the -> separator; each side validates independently.
		for _, part := range strings.Split(current.String(), "->") {
			if part != "" {
				tokens = append(tokens, part)
			}
		}
		current.Reset()
	}

	for _, ch := range expr {
		switch {
		case ch == '|' || ch == '&' || ch == '(' || ch == ')' || ch == '!':
			flush()
			tokens = append(tokens, string(ch))
		case ch == ' ' || ch == '\t' || ch == '\n':
			flush()
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return tokens
}
