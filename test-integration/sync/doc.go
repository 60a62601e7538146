// Package integration runs the sync service end to end against mock registries.
// Targets are disabled in every configuration so ticks only run when a spec
// triggers them through the admin API.
package integration
