package resource

import "sort"

// Ranks. Lower ranks are uploaded first.
const (
	RankCodeSystem          = 1
	RankValueSet            = 2
	RankConceptMap          = 3
	RankExtension           = 4
	RankStructureDefinition = 5
	RankDefinition          = 6
	RankOther               = 10
)

// Rank returns the upload rank of r. Code systems and value sets come before
// the concept maps and profiles that bind to them, extension definitions come
// before the profiles that slice on them, and search parameters, compartments
// and operations come last.
func Rank(r Resource) int {
	switch r.Type {
	case TypeCodeSystem:
		return RankCodeSystem
	case TypeValueSet:
		return RankValueSet
	case TypeConceptMap:
		return RankConceptMap
	case TypeStructureDefinition:
		if r.StructureType == StructureTypeExtension {
			return RankExtension
		}
		return RankStructureDefinition
	case TypeSearchParameter, TypeCompartmentDefinition, TypeOperationDefinition:
		return RankDefinition
	default:
		return RankOther
	}
}

// Sort returns a copy of resources ordered by ascending Rank.
// Resources of equal rank keep their input order.
func Sort(resources []Resource) []Resource {
	sorted := make([]Resource, len(resources))
	copy(sorted, resources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Rank(sorted[i]) < Rank(sorted[j])
	})
	return sorted
}

// Filter returns the resources whose type is a metadata type.
func Filter(resources []Resource) []Resource {
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if IsMetadata(r.Type) {
			out = append(out, r)
		}
	}
	return out
}
