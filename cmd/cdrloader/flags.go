package main

import (
	"github.com/spf13/cobra"

	cdrloader "github.com/gofhir/cdrloader"
	"github.com/gofhir/cdrloader/pkg/logger"
)

// Flag names double as viper keys.
const (
	flagIAM         = "iam"
	flagFHIR        = "fhir"
	flagModule      = "module"
	flagUser        = "user"
	flagPass        = "pass"
	flagClient      = "client"
	flagSecret      = "secret"
	flagOrg         = "org"
	flagFHIRVersion = "fhirVersion"

	flagFailures     = "failures"
	flagFormat       = "format"
	flagWhere        = "where"
	flagRate         = "rate"
	flagTimeout      = "timeout"
	flagDryRun       = "dry-run"
	flagInsecureHTTP = "insecure-http"
	flagLogLevel     = "log-level"
	flagLogFormat    = "log-format"

	flagArtifactEndpoint  = "artifact-endpoint"
	flagArtifactBucket    = "artifact-bucket"
	flagArtifactPrefix    = "artifact-prefix"
	flagArtifactAccessKey = "artifact-access-key"
	flagArtifactSecretKey = "artifact-secret-key"
	flagArtifactSSL       = "artifact-ssl"
)

func registerFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.StringP(flagIAM, "i", cdrloader.DefaultAuthEndpoint, "IAM endpoint host")
	f.StringP(flagFHIR, "t", cdrloader.DefaultDataEndpoint, "FHIR store endpoint host")
	f.StringP(flagModule, "m", "", "FHIR package: module name under node_modules, directory, .tgz or name#version")
	f.StringP(flagUser, "u", "", "user name")
	f.StringP(flagPass, "w", "", "password")
	f.StringP(flagClient, "c", "", "OAuth2 client id")
	f.StringP(flagSecret, "s", "", "OAuth2 client secret")
	f.StringP(flagOrg, "o", "", "CDR tenant organization")
	f.StringP(flagFHIRVersion, "v", string(cdrloader.STU3), "FHIR version sent in the media type")

	f.String(flagFailures, cdrloader.DefaultFailuresPath, "failure artifact path")
	f.String(flagFormat, cdrloader.DefaultFailuresFormat, "failure artifact format: ndjson, json")
	f.String(flagWhere, "", "FHIRPath expression a resource must satisfy to be uploaded")
	f.Float64(flagRate, 0, "maximum uploads per second (0 = unlimited)")
	f.Duration(flagTimeout, 0, "HTTP request timeout (0 = none)")
	f.Bool(flagDryRun, false, "print the upload plan without authenticating or uploading")
	f.Bool(flagInsecureHTTP, false, "use http:// for both endpoints (local testing only)")
	f.String(flagLogLevel, "info", "log level: debug, info, warn, error")
	f.String(flagLogFormat, logger.FormatConsole, "log format: console, json")

	f.String(flagArtifactEndpoint, "", "S3 compatible endpoint the failure artifact is copied to")
	f.String(flagArtifactBucket, "", "bucket for the failure artifact (empty disables publication)")
	f.String(flagArtifactPrefix, "", "object name prefix for the failure artifact")
	f.String(flagArtifactAccessKey, "", "object storage access key")
	f.String(flagArtifactSecretKey, "", "object storage secret key")
	f.Bool(flagArtifactSSL, true, "use TLS for object storage")
}
