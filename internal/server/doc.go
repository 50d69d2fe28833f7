// Package server hosts the Fiber HTTP service, the request middleware chain,
// and the app registry that maps Host headers onto configured [[App]] blocks.
// Intercepted traffic is handed to a ProxyHandler; diagnostics under /-/ are
// registered separately by the routes subpackage. Keep exports narrow and
// accept explicit dependencies.
package server
