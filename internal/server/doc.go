// Package server runs the loopback HTTP server that completes the OAuth login.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with method filtering and a [Middleware] chain.
// Middleware added first runs outermost.
//
// # Callback
//
// [CallbackHandler] serves the redirect URI. It checks the state value, hands the
// authorization code to a [LoginFunc] and reports the outcome exactly once through
// [CallbackHandler.Result]. Later requests are rejected so a code cannot be replayed.
//
// [Server] binds the handler to the host and port from the redirect URI and shuts
// down when the login finishes or the context ends.
package server
