package registry

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// OperationName derives the generated operation name for an identifier,
// e.g. "core_sla_domains" becomes "SdkGoCoreSlaDomains".
func OperationName(prefix, identifier string) string {
	var b strings.Builder

	b.WriteString(prefix)

	for _, part := range strings.Split(identifier, "_") {
		if part == "" {
			continue
		}

		b.WriteString(titleCaser.String(part))
	}

	return b.String()
}

// Parse turns one template into an operation definition. The placeholder
// operation name is rewritten before parsing.
func Parse(identifier, text, prefix string) (polaris.OperationDefinition, error) {
	body := strings.ReplaceAll(text, constants.OperationPlaceholder, OperationName(prefix, identifier))

	doc, err := parser.ParseQuery(&ast.Source{Name: identifier, Input: body})
	if err != nil {
		return polaris.OperationDefinition{}, polaris.NewError(polaris.KindParse, identifier, err)
	}

	switch {
	case len(doc.Operations) == 0:
		return polaris.OperationDefinition{}, polaris.NewError(polaris.KindParse, identifier, constants.ErrNoOperation)
	case len(doc.Operations) > 1:
		return polaris.OperationDefinition{}, polaris.NewError(polaris.KindParse, identifier, constants.ErrMultipleOperations)
	}

	op := doc.Operations[0]

	var category polaris.OperationCategory

	switch op.Operation {
	case ast.Query:
		category = polaris.CategoryQuery
	case ast.Mutation:
		category = polaris.CategoryMutation
	default:
		return polaris.OperationDefinition{}, polaris.NewError(polaris.KindParse, identifier,
			fmt.Errorf("%w: %s operations are not supported", constants.ErrNoOperation, op.Operation))
	}

	field := firstField(op.SelectionSet)
	if field == nil {
		return polaris.OperationDefinition{}, polaris.NewError(polaris.KindParse, identifier, constants.ErrNoSelectionField)
	}

	def := polaris.OperationDefinition{
		Name:           identifier,
		Category:       category,
		OperationName:  op.Name,
		Query:          body,
		SelectionField: field.Alias,
		Variables:      variableSpecs(op.VariableDefinitions),
	}

	_, hasAfter := def.Variable(constants.AfterVariable)
	def.Paginated = hasAfter && firstFieldNamed(field.SelectionSet, "pageInfo") != nil

	return def, nil
}

func firstField(set ast.SelectionSet) *ast.Field {
	for _, sel := range set {
		if f, ok := sel.(*ast.Field); ok {
			return f
		}
	}

	return nil
}

func firstFieldNamed(set ast.SelectionSet, name string) *ast.Field {
	for _, sel := range set {
		if f, ok := sel.(*ast.Field); ok && f.Name == name {
			return f
		}
	}

	return nil
}

func variableSpecs(defs ast.VariableDefinitionList) []polaris.VariableSpec {
	specs := make([]polaris.VariableSpec, 0, len(defs))

	for _, d := range defs {
		spec := polaris.VariableSpec{
			Name:     d.Variable,
			Type:     d.Type.Name(),
			RawType:  d.Type.String(),
			Required: d.Type.NonNull,
			IsList:   d.Type.Elem != nil,
		}

		if d.DefaultValue != nil {
			spec.Default = d.DefaultValue.String()
			spec.HasDefault = true
		}

		specs = append(specs, spec)
	}

	return specs
}
