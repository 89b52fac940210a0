// Package transport reaches a pantry server over whichever channel works.
//
// A pantry server listens on a unix socket and on a TCP port at the same
// time. The Dispatcher tries the socket first and falls back to HTTP over TCP
// once, without the caller knowing which route answered:
//
//	Dispatch ──> LocalAttempt ──ok──> Response
//	                  │
//	                fail (debug log)
//	                  │
//	                  v
//	             NetworkAttempt ──ok──> Response
//	                  │
//	                fail ──> *TransportError{Local, Network}
//
// An HTTP status, even 4xx or 5xx, is a successful dispatch. Status handling
// belongs to the caller, usually through DecodeJSON or CheckStatus.
//
// # Configuration
//
//	d := transport.NewDispatcher(
//	    transport.WithSocketPath("/tmp/pantrylocal.sock"),
//	    transport.WithBaseURL("http://localhost:9404"),
//	)
//	defer d.Close()
//
// FromEnv reads PANTRY_SOCKET_PATH, PANTRY_BASE_URL and
// PANTRY_LOCAL_DIAL_TIMEOUT. An empty address disables its channel.
//
// # Errors
//
// Unreachable servers produce *TransportError, bad bodies *DecodingError and
// non-2xx answers *APIError. Use errors.Is/As, or the IsNotFound and
// IsUnauthorized helpers.
package transport
