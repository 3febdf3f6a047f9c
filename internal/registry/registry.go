// Package registry loads GraphQL operation templates into an immutable
// name to definition table.
package registry

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

//go:embed templates/*.graphql
var builtin embed.FS

// Builtin returns the templates shipped with the client.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		panic(err)
	}

	return sub
}

// Option configures Build.
type Option func(*options)

type options struct {
	prefix string
	logger polaris.Logger
}

// WithPrefix sets the prefix of generated operation names.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger polaris.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Registry is an immutable set of operation definitions.
type Registry struct {
	ops   map[string]polaris.OperationDefinition
	names []string
}

// Build parses every .graphql file in fsys. Any bad template fails the
// whole build.
func Build(fsys fs.FS, opts ...Option) (*Registry, error) {
	o := &options{prefix: constants.DefaultOperationPrefix, logger: polaris.NopLogger{}}
	for _, opt := range opts {
		opt(o)
	}

	reg := &Registry{ops: make(map[string]polaris.OperationDefinition)}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || path.Ext(p) != constants.TemplateExtension {
			return nil
		}

		identifier, hint := splitFileName(path.Base(p))

		text, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", p, err)
		}

		def, err := Parse(identifier, string(text), o.prefix)
		if err != nil {
			return err
		}

		if hint != "" && hint != def.Category {
			return polaris.NewError(polaris.KindParse, identifier,
				fmt.Errorf("%w: file says %s, template declares %s", constants.ErrNoOperation, hint, def.Category))
		}

		if _, dup := reg.ops[identifier]; dup {
			return polaris.NewError(polaris.KindParse, identifier, constants.ErrDuplicateOperation)
		}

		reg.ops[identifier] = def
		reg.names = append(reg.names, identifier)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build operation registry: %w", err)
	}

	sort.Strings(reg.names)

	o.logger.Debug("Operation registry built", map[string]interface{}{
		"operations": len(reg.names),
	})

	return reg, nil
}

// Default builds the registry from the built-in templates.
func Default(opts ...Option) (*Registry, error) {
	return Build(Builtin(), opts...)
}

// Get returns a copy of the named definition.
func (r *Registry) Get(name string) (polaris.OperationDefinition, bool) {
	def, ok := r.ops[name]
	if !ok {
		return polaris.OperationDefinition{}, false
	}

	def.Variables = slices.Clone(def.Variables)

	return def, true
}

// Lookup is Get returning a validation error for unknown names.
func (r *Registry) Lookup(name string) (polaris.OperationDefinition, error) {
	def, ok := r.Get(name)
	if !ok {
		return def, polaris.NewError(polaris.KindValidation, name, constants.ErrUnknownOperation)
	}

	return def, nil
}

// Names returns the sorted operation names.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Len returns the number of operations.
func (r *Registry) Len() int {
	return len(r.names)
}

func splitFileName(base string) (string, polaris.OperationCategory) {
	stem := strings.TrimSuffix(base, constants.TemplateExtension)

	for _, c := range []polaris.OperationCategory{polaris.CategoryQuery, polaris.CategoryMutation} {
		if rest, ok := strings.CutPrefix(stem, string(c)+"_"); ok && rest != "" {
			return rest, c
		}
	}

	return stem, ""
}
