// Package core provides the shared data model, interfaces, error taxonomy,
// logger, and configuration used by every component of the autonomy engine:
// goal manager, planner, action selector, tool registry, observation
// analyzer, memory store, learning store, agent loop, and the distributed
// job queue / worker pool / service registry.
//
// No collaborator depends back on the agent loop; this package sits at the
// bottom of the dependency graph so every other package may import it.
package core
