// Package clone rewrites the network identity of a multisite snapshot after it
// has been restored into a non-production environment.
//
// The Service walks a fixed sequence of stages: it resolves the environment,
// refuses to touch production, verifies the snapshot came from the production
// network, enumerates tenants, and then updates each tenant's domain and path
// while background search-replace processes rewrite embedded URLs. The
// CommandBuilder exposes the workflow as the sync-domains Cobra command.
package clone
