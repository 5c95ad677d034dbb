// Package resource classifies FHIR conformance resources and orders them for upload.
package resource

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	json "github.com/goccy/go-json"
)

// Metadata resource types accepted by the loader.
const (
	TypeCodeSystem            = "CodeSystem"
	TypeValueSet              = "ValueSet"
	TypeConceptMap            = "ConceptMap"
	TypeStructureDefinition   = "StructureDefinition"
	TypeSearchParameter       = "SearchParameter"
	TypeCompartmentDefinition = "CompartmentDefinition"
	TypeOperationDefinition   = "OperationDefinition"
)

// StructureTypeExtension is the StructureDefinition.type of extension definitions.
const StructureTypeExtension = "Extension"

// MetadataTypes lists the recognized resource types in upload order.
var MetadataTypes = []string{
	TypeCodeSystem,
	TypeValueSet,
	TypeConceptMap,
	TypeStructureDefinition,
	TypeSearchParameter,
	TypeCompartmentDefinition,
	TypeOperationDefinition,
}

// IsMetadata reports whether resourceType is one of MetadataTypes.
func IsMetadata(resourceType string) bool {
	for _, t := range MetadataTypes {
		if t == resourceType {
			return true
		}
	}
	return false
}

// ErrNoResourceType is returned by Parse for JSON documents without a resourceType.
var ErrNoResourceType = errors.New("document has no resourceType")

// Resource is a FHIR resource read from a package. Raw is forwarded verbatim;
// the other fields are probed from it.
type Resource struct {
	Type string
	URL  string
	ID   string

	// StructureType is StructureDefinition.type; empty for other resource types.
	StructureType string

	// Source names the file the resource was read from.
	Source string

	Raw json.RawMessage
}

// Parse probes raw for the fields needed to rank and upload it.
func Parse(raw []byte, source string) (Resource, error) {
	if !json.Valid(raw) {
		return Resource{}, fmt.Errorf("%s: invalid JSON", source)
	}

	resourceType, err := jsonparser.GetString(raw, "resourceType")
	if err != nil || resourceType == "" {
		return Resource{}, fmt.Errorf("%s: %w", source, ErrNoResourceType)
	}

	r := Resource{
		Type:   resourceType,
		URL:    optionalString(raw, "url"),
		ID:     optionalString(raw, "id"),
		Source: source,
		Raw:    json.RawMessage(raw),
	}
	if resourceType == TypeStructureDefinition {
		r.StructureType = optionalString(raw, "type")
	}
	return r, nil
}

func optionalString(raw []byte, key string) string {
	v, err := jsonparser.GetString(raw, key)
	if err != nil {
		return ""
	}
	return v
}

// IsExtension reports whether r is an extension StructureDefinition.
func (r Resource) IsExtension() bool {
	return r.Type == TypeStructureDefinition && r.StructureType == StructureTypeExtension
}

// String returns "Type url" or "Type/id" when url is absent.
func (r Resource) String() string {
	switch {
	case r.URL != "":
		return r.Type + " " + r.URL
	case r.ID != "":
		return r.Type + "/" + r.ID
	default:
		return r.Type
	}
}
