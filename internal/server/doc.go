// Package server hosts the blog API behind a single HTTP multiplexer.
//
// The server builds a consistent middleware chain of request IDs, logging,
// metrics, CORS, rate limiting, and token attachment so handlers all share
// common protections and instrumentation. The token middleware never rejects
// a request: it attaches the verified identity when one is present and leaves
// each operation to enforce its own authentication requirement.
package server
