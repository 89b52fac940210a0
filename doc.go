// Package pantrykit is a Go client for pantry, a local LLM server.
//
// The server listens on a unix socket and on a TCP address. Requests go to
// the socket first and fall back to the network once, so callers never pick a
// channel themselves. Inference output arrives as an event stream that is
// pulled one event at a time.
//
// Subpackages:
//
//   - client: Client and Session facade over every pantry endpoint
//   - stream: pull-based EventStream, Accumulator and Collect
//   - transport: local-then-network Dispatcher, config and error types
//   - sse: text/event-stream frame decoder
//   - api: wire types, the dynamic Value type and JSON Schema export
//
// # Quick Start
//
//	import "github.com/randalmurphal/pantrykit/client"
//
//	c := client.Login(userID, apiKey)
//	defer c.Close()
//
//	sess, err := c.CreateSession(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	text, err := sess.Complete(ctx, "About me: ", nil)
//
// The pantry command in cmd/pantry wraps the same API for the shell.
package pantrykit
