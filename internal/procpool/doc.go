// Package procpool tracks background WP-CLI processes, reaps the ones that
// have exited, and applies backpressure by polling until the number of
// processes still running falls to a requested bound.
package procpool
