// Package wpcli issues the WP-CLI commands that read and rewrite a multisite
// network: database queries against the blogs and site tables and per-tenant
// search-replace runs. Commands are built as argument lists and SQL literals
// are quoted before they reach the database.
package wpcli
