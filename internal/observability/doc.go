// Package observability builds the process-wide zap logger.
//
// Levels are debug, info, warn and error. The json format is meant for
// deployed services; console is easier to read during local development.
package observability
