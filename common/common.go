// Package common holds identifiers shared across services and commands.
package common

// PackageName is the canonical module name, used as the metrics namespace.
const PackageName = "shadowbid"

// Version is set at build time via -ldflags.
var Version = "dev"
