package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/meridianhq/meridian/internal/shared"
)

// maxGridDepth bounds module nesting: a module, or a module.submodule.
const maxGridDepth = 2

// Grid is the nested permission structure of a role: module names mapped to
// either a terminal action set or a further level of sub-modules.
type Grid map[string]Node

// Node is a tagged union: Terminal(action set) or Nested(sub-module map).
type Node struct {
	actions  []Action
	children map[string]Node
	nested   bool
}

// Terminal builds a leaf node holding an action set. An empty set is valid
// and denies every action for that module.
func Terminal(actions ...Action) Node {
	out := make([]Action, len(actions))
	copy(out, actions)
	return Node{actions: out}
}

// Nested builds an inner node holding sub-modules.
func Nested(children map[string]Node) Node {
	out := make(map[string]Node, len(children))
	for name, child := range children {
		out[name] = child
	}
	return Node{children: out, nested: true}
}

// IsNested reports whether the node holds sub-modules rather than actions.
func (n Node) IsNested() bool { return n.nested }

// Actions returns a copy of the terminal action set.
func (n Node) Actions() []Action {
	out := make([]Action, len(n.actions))
	copy(out, n.actions)
	return out
}

// Child looks up a sub-module node.
func (n Node) Child(name string) (Node, bool) {
	child, ok := n.children[name]
	return child, ok
}

// MarshalJSON encodes terminals as action arrays and nested nodes as objects,
// matching the stored document shape.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.nested {
		return json.Marshal(n.children)
	}
	if n.actions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(n.actions)
}

// UnmarshalJSON decodes an action array into a terminal node and an object
// into a nested node.
func (n *Node) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("rbac: empty permission node")
	}
	switch trimmed[0] {
	case '[':
		var actions []Action
		if err := json.Unmarshal(trimmed, &actions); err != nil {
			return err
		}
		*n = Node{actions: actions}
		return nil
	case '{':
		var children map[string]Node
		if err := json.Unmarshal(trimmed, &children); err != nil {
			return err
		}
		*n = Node{children: children, nested: true}
		return nil
	default:
		return fmt.Errorf("rbac: permission node must be an action array or a module object")
	}
}

// Allows walks the grid one path segment at a time and reports whether the
// action is a member of the terminal action set the path resolves to. Any
// missing segment denies; a path that stops at a nested node denies.
func (g Grid) Allows(modulePath string, action Action) bool {
	if len(g) == 0 || modulePath == "" {
		return false
	}
	parts := strings.Split(modulePath, ".")
	node, ok := g[parts[0]]
	if !ok {
		return false
	}
	for _, part := range parts[1:] {
		if !node.nested {
			return false
		}
		node, ok = node.children[part]
		if !ok {
			return false
		}
	}
	if node.nested {
		return false
	}
	for _, a := range node.actions {
		if a == action {
			return true
		}
	}
	return false
}

// Flatten returns every terminal module path with its action set, used to
// enumerate a caller's effective permissions.
func (g Grid) Flatten() map[string][]Action {
	out := make(map[string][]Action)
	for name, node := range g {
		flattenNode(name, node, out)
	}
	return out
}

func flattenNode(path string, node Node, out map[string][]Action) {
	if !node.nested {
		out[path] = node.Actions()
		return
	}
	for name, child := range node.children {
		flattenNode(path+"."+name, child, out)
	}
}

// Validate checks grid structure: non-empty module names, known actions and
// nesting depth of at most two levels.
func (g Grid) Validate() error {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateNode(name, g[name], 1); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(path string, node Node, depth int) error {
	if strings.Contains(path, "..") || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return fmt.Errorf("rbac: module path %q: %w", path, shared.ErrValidation)
	}
	if node.nested {
		if depth >= maxGridDepth {
			return fmt.Errorf("rbac: module path %q exceeds maximum nesting depth: %w", path, shared.ErrValidation)
		}
		for name, child := range node.children {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("rbac: empty sub-module name under %q: %w", path, shared.ErrValidation)
			}
			if err := validateNode(path+"."+name, child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("rbac: empty module name: %w", shared.ErrValidation)
	}
	for _, a := range node.actions {
		if !a.IsValid() {
			return fmt.Errorf("rbac: module %q holds unknown action %q: %w", path, a, shared.ErrValidation)
		}
	}
	return nil
}

// ValidatePath checks module path syntax without consulting a grid. Reserved
// for callers that construct paths dynamically.
func ValidatePath(modulePath string) error {
	if strings.TrimSpace(modulePath) == "" {
		return fmt.Errorf("rbac: empty module path: %w", shared.ErrValidation)
	}
	parts := strings.Split(modulePath, ".")
	if len(parts) > maxGridDepth {
		return fmt.Errorf("rbac: module path %q exceeds maximum nesting depth: %w", modulePath, shared.ErrValidation)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("rbac: module path %q holds an empty segment: %w", modulePath, shared.ErrValidation)
		}
	}
	return nil
}
