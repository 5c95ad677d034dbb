// Package selector narrows a set of resources with a FHIRPath predicate.
package selector

import (
	"fmt"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"

	"github.com/gofhir/cdrloader/pkg/resource"
)

// Selector keeps resources for which a FHIRPath expression is truthy.
// The zero value and a Selector built from an empty expression keep everything.
type Selector struct {
	expression string
	compiled   *fhirpath.Expression
}

// New compiles expr. An empty expr selects every resource.
func New(expr string) (*Selector, error) {
	if expr == "" {
		return &Selector{}, nil
	}
	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", expr, err)
	}
	return &Selector{expression: expr, compiled: compiled}, nil
}

// Expression returns the source expression.
func (s *Selector) Expression() string {
	return s.expression
}

// Match evaluates the expression against r.
//
// Empty results are false, a single boolean is its own value, and any other
// non-empty collection is true.
func (s *Selector) Match(r resource.Resource) (bool, error) {
	if s == nil || s.compiled == nil {
		return true, nil
	}
	result, err := s.compiled.Evaluate(r.Raw)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate FHIRPath expression '%s' on %s: %w", s.expression, r, err)
	}
	return toBool(result), nil
}

// Filter returns the matching resources in input order. Resources the
// expression cannot be evaluated on are returned separately with their error.
func (s *Selector) Filter(resources []resource.Resource) (selected []resource.Resource, errs []error) {
	selected = make([]resource.Resource, 0, len(resources))
	for _, r := range resources {
		ok, err := s.Match(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			selected = append(selected, r)
		}
	}
	return selected, errs
}

func toBool(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}
