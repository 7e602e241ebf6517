package authz

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/gatehouse/pkg/scopes"
	"gopkg.in/yaml.v3"
)

// Registry maps operations to their requirements. It is built once at
// startup and read concurrently afterwards.
type Registry struct {
	operations map[OperationID]Requirement
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{operations: make(map[OperationID]Requirement)}
}

// Declare registers op with tenant permissions and OAuth scopes. The
// operation counts as declared even when both lists are empty.
func (r *Registry) Declare(op OperationID, permissions []Permission, oauth ...scopes.Permission) *Registry {
	r.operations[op] = Requirement{
		Declared:    true,
		Permissions: append([]Permission(nil), permissions...),
		Scopes:      scopes.NewSet(oauth...),
	}
	return r
}

// DeclareTenantOnly registers op with tenant permissions but no scope
// annotation, so third-party tokens are rejected
func (r *Registry) DeclareTenantOnly(op OperationID, permissions ...Permission) *Registry {
	r.operations[op] = Requirement{Permissions: append([]Permission(nil), permissions...)}
	return r
}

// Lookup returns the requirement of op. Unknown operations return an
// undeclared, empty requirement.
func (r *Registry) Lookup(op OperationID) Requirement {
	return r.operations[op]
}

// Operations lists registered operation ids in sorted order
func (r *Registry) Operations() []OperationID {
	ops := make([]OperationID, 0, len(r.operations))
	for op := range r.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// registryFile is the YAML layout:
//
//	operations:
//	  roles.list:
//	    permissions: [role.read]
//	    scopes: [ROLE_READ]
//	  me.get:
//	    scopes: []
//
// Omitting scopes leaves the operation undeclared for third-party tokens.
type registryFile struct {
	Operations map[string]struct {
		Permissions []string  `yaml:"permissions"`
		Scopes      *[]string `yaml:"scopes"`
	} `yaml:"operations"`
}

// LoadRegistry parses a YAML registry
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse operation registry: %w", err)
	}

	reg := NewRegistry()
	for name, op := range file.Operations {
		perms := make([]Permission, 0, len(op.Permissions))
		for _, raw := range op.Permissions {
			p, err := ParsePermission(raw)
			if err != nil {
				return nil, fmt.Errorf("operation %s: %w", name, err)
			}
			perms = append(perms, p)
		}

		if op.Scopes == nil {
			reg.DeclareTenantOnly(OperationID(name), perms...)
			continue
		}

		oauth := make([]scopes.Permission, 0, len(*op.Scopes))
		for _, s := range *op.Scopes {
			p, ok := scopes.ScopeToPermission(s)
			if !ok {
				return nil, fmt.Errorf("operation %s: unknown scope %q", name, s)
			}
			oauth = append(oauth, p)
		}
		reg.Declare(OperationID(name), perms, oauth...)
	}
	return reg, nil
}

// LoadRegistryFile reads a YAML registry from path
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation registry: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}
