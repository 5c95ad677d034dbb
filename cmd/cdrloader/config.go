package main

import (
	cdrloader "github.com/gofhir/cdrloader"
	"github.com/gofhir/cdrloader/pkg/artifact"
)

// config builds the run configuration from flags, environment and config file.
// Plans never authenticate, so they are validated as dry runs.
func (a *app) config(plan bool) (cdrloader.Config, error) {
	v := a.v
	version := cdrloader.ParseFHIRVersion(v.GetString(flagFHIRVersion))

	return cdrloader.NewConfig(
		cdrloader.WithEndpoints(v.GetString(flagIAM), v.GetString(flagFHIR)),
		cdrloader.WithInsecureHTTP(v.GetBool(flagInsecureHTTP)),
		cdrloader.WithOrganization(v.GetString(flagOrg)),
		cdrloader.WithFHIRVersion(version.String()),
		cdrloader.WithCredentials(
			v.GetString(flagUser),
			v.GetString(flagPass),
			v.GetString(flagClient),
			v.GetString(flagSecret),
		),
		cdrloader.WithModule(v.GetString(flagModule)),
		cdrloader.WithWhere(v.GetString(flagWhere)),
		cdrloader.WithFailures(v.GetString(flagFailures), v.GetString(flagFormat)),
		cdrloader.WithRate(v.GetFloat64(flagRate)),
		cdrloader.WithTimeout(v.GetDuration(flagTimeout)),
		cdrloader.WithDryRun(plan || v.GetBool(flagDryRun)),
		cdrloader.WithArtifact(cdrloader.ArtifactConfig{
			Endpoint:  v.GetString(flagArtifactEndpoint),
			Bucket:    v.GetString(flagArtifactBucket),
			Prefix:    v.GetString(flagArtifactPrefix),
			AccessKey: v.GetString(flagArtifactAccessKey),
			SecretKey: v.GetString(flagArtifactSecretKey),
			UseSSL:    v.GetBool(flagArtifactSSL),
		}),
	)
}

func artifactConfig(cfg cdrloader.ArtifactConfig) artifact.Config {
	return artifact.Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
	}
}
