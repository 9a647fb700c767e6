package mcp

import (
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultNamespace prefixes every tool name
const DefaultNamespace = "lsp_"

// ToolDescriptor is the registered form of an operation
type ToolDescriptor struct {
	Name        string
	Description string
	Operation   Operation
}

// ToolAdder is the part of the MCP server the registry writes to.
// *server.MCPServer satisfies it
type ToolAdder interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// registeredAdders holds every adder that has received tools. Each adder
// accepts one registration, whichever registry makes it
var (
	addersMu         sync.Mutex
	registeredAdders = make(map[ToolAdder]struct{})
)

// Registry derives tool names from operations and registers them once
type Registry struct {
	mu         sync.RWMutex
	namespace  string
	disabled   map[string]bool
	tools      map[string]ToolDescriptor
	registered bool
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithDisabledTools skips the named tools. Names may be given with or
// without the namespace
func WithDisabledTools(names ...string) RegistryOption {
	return func(r *Registry) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			r.disabled[name] = true
		}
	}
}

// NewRegistry creates a registry for namespace. An empty namespace falls
// back to DefaultNamespace
func NewRegistry(namespace string, opts ...RegistryOption) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &Registry{
		namespace: namespace,
		disabled:  make(map[string]bool),
		tools:     make(map[string]ToolDescriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namespace returns the prefix applied to operation ids
func (r *Registry) Namespace() string {
	return r.namespace
}

// ToolName derives the tool name for an operation id
func (r *Registry) ToolName(id string) string {
	return r.namespace + id
}

// Describe builds the descriptors for ops without registering anything
func (r *Registry) Describe(ops []Operation) ([]ToolDescriptor, error) {
	descs := make([]ToolDescriptor, 0, len(ops))
	owners := make(map[string][]string, len(ops))
	for _, op := range ops {
		name := r.ToolName(op.ID)
		if r.disabled[name] || r.disabled[op.ID] {
			continue
		}
		owners[name] = append(owners[name], op.ID)
		descs = append(descs, ToolDescriptor{
			Name:        name,
			Description: op.Description,
			Operation:   op,
		})
	}
	for _, desc := range descs {
		if ids := owners[desc.Name]; len(ids) > 1 {
			return nil, &DuplicateToolError{Name: desc.Name, Operations: ids}
		}
	}
	return descs, nil
}

// RegisterAll adds one tool per operation to adder. Nothing is added when
// two operations derive the same name. A registry accepts only one call and
// an adder, which must be comparable, accepts tools from only one registry
func (r *Registry) RegisterAll(adder ToolAdder, d *Dispatcher, ops []Operation) ([]ToolDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return nil, ErrAlreadyRegistered
	}

	addersMu.Lock()
	defer addersMu.Unlock()
	if _, ok := registeredAdders[adder]; ok {
		return nil, ErrAlreadyRegistered
	}

	descs, err := r.Describe(ops)
	if err != nil {
		return nil, err
	}

	for _, desc := range descs {
		adder.AddTool(newTool(desc), d.Handler(desc))
		r.tools[desc.Name] = desc
	}
	r.registered = true
	registeredAdders[adder] = struct{}{}
	return descs, nil
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.tools[name]
	return desc, ok
}

// Descriptors returns the registered tools sorted by name
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]ToolDescriptor, 0, len(r.tools))
	for _, desc := range r.tools {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
