package cdrloader

import "strings"

// FHIRVersion is the value of the fhirVersion media type parameter.
type FHIRVersion string

// Versions understood by the repository.
const (
	// STU3 is FHIR Release 3 (3.0.x)
	STU3 FHIRVersion = "3.0"
	// R4 is FHIR Release 4 (4.0.x)
	R4 FHIRVersion = "4.0"
	// R4B is FHIR Release 4B (4.3.x)
	R4B FHIRVersion = "4.3"
	// R5 is FHIR Release 5 (5.0.x)
	R5 FHIRVersion = "5.0"
)

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsKnown reports whether v is one of the released versions.
// Unknown versions are still sent; the repository decides.
func (v FHIRVersion) IsKnown() bool {
	switch v {
	case STU3, R4, R4B, R5:
		return true
	default:
		return false
	}
}

// MediaType returns the FHIR JSON media type with the fhirVersion parameter.
func (v FHIRVersion) MediaType() string {
	return "application/fhir+json;fhirVersion=" + string(v)
}

// ParseFHIRVersion normalizes a version string. Full versions ("4.0.1")
// and release names ("R4", "stu3") map to the major.minor form.
func ParseFHIRVersion(s string) FHIRVersion {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "STU3", "R3":
		return STU3
	case "R4":
		return R4
	case "R4B":
		return R4B
	case "R5":
		return R5
	}

	parts := strings.SplitN(s, ".", 3)
	if len(parts) >= 2 {
		return FHIRVersion(parts[0] + "." + parts[1])
	}
	return FHIRVersion(s)
}
