// Package cli provides the command-line interface for restwire.
//
// Commands load the merged configuration, build the service container and
// work against assembled resources:
//   - validate: check the configuration schema and every declared resource
//   - assemble: build one resource and print how it was wired
//   - fetch: read one entity or a page of a collection through a resource
//   - config get: print a value from the merged configuration
//   - token issue / token introspect: work with the authorization server
//   - version: show restwire version
//
// Global settings come from flags, RESTWIRE_* environment variables, in that
// order of precedence:
//
//	restwire validate -c 'config/autoload/*.yaml'
//	restwire assemble widgets --json
//	restwire fetch widgets --id 42
//	restwire fetch widgets -p limit=10 -p sort=name --token "$TOKEN"
//	restwire config get '$.api-tools.doctrine-connected.widgets'
//	RESTWIRE_LOG_LEVEL=debug restwire token issue --sub alice
package cli
