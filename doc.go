// Package cdrloader publishes FHIR conformance packages to a clinical data repository.
//
// A package (an NPM-style FHIR package directory or .tgz) is read, reduced to the
// metadata resources a repository needs before it can accept profiled data, ordered so
// that referenced artifacts are created before the artifacts that reference them, and
// uploaded one at a time with a conditional create on the canonical url.
//
// # Quick Start
//
//	cfg, err := cdrloader.NewConfig(
//	    cdrloader.WithEndpoints("iam.example.com", "cdr.example.com"),
//	    cdrloader.WithOrganization("my-org"),
//	    cdrloader.WithCredentials("user", "pass", "client", "secret"),
//	    cdrloader.WithModule("my.fhir.profiles"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pkg, err := loader.New().Load(cfg.Module)
//	ordered := resource.Sort(pkg.Resources)
//
//	open := failures.Opener(cfg.FailuresPath, cfg.FailuresFormat)
//	grant := auth.NewPasswordGrant(cfg.TokenURL(), creds)
//	client := cdr.NewClient(cfg.StoreURL(), cdrloader.FHIRVersion(cfg.FHIRVersion).MediaType())
//
//	summary, err := upload.New(grant, client, open, upload.WithLogger(logger)).Run(ctx, ordered)
//
// # Upload Order
//
// Resources are ranked by type and uploaded in ascending rank:
//
//   - CodeSystem
//   - ValueSet
//   - ConceptMap
//   - StructureDefinition with type Extension
//   - Any other StructureDefinition
//   - SearchParameter, CompartmentDefinition, OperationDefinition
//
// The order is an approximation of the dependency graph. Missing or circular
// references are reported by the repository as individual upload failures.
//
// # Failures
//
// A failed upload never stops the run. Each failure is written to the failure artifact
// as {"request": ..., "response": ...}. Only an authentication failure aborts a run,
// before any resource is posted.
package cdrloader
