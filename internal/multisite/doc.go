// Package multisite models the tenants of a multisite network and the pure
// rules that move them onto a new environment domain: domain resolution,
// subdirectory versus subdomain topology selection, and per-tenant remapping.
package multisite
