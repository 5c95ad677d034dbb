package resource

import (
	json "github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"
)

// Summary is a one-line description of a resource for upload plans.
type Summary struct {
	Rank   int
	Type   string
	URL    string
	Name   string
	Detail string
}

// Describe summarizes r. StructureDefinitions are decoded with the R4 model to
// report kind, type and base definition; documents that do not decode as R4
// (STU3 contexts, for example) fall back to the probed fields.
func Describe(r Resource) Summary {
	s := Summary{
		Rank: Rank(r),
		Type: r.Type,
		URL:  r.URL,
		Name: optionalString(r.Raw, "name"),
	}

	if r.Type != TypeStructureDefinition {
		return s
	}

	var sd r4.StructureDefinition
	if err := json.Unmarshal(r.Raw, &sd); err != nil {
		s.Detail = r.StructureType
		return s
	}

	detail := deref(sd.Type)
	if sd.Kind != nil {
		detail = string(*sd.Kind) + " " + detail
	}
	if base := deref(sd.BaseDefinition); base != "" {
		detail += " <- " + base
	}
	s.Detail = detail
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
