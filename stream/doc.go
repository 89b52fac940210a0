// Package stream reads prompt events from a pantry event stream.
//
// An EventStream is pulled one event at a time:
//
//	s, err := stream.Open(ctx, dispatcher, "/prompt_session_stream", body)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	for ev := range s.All() {
//	    fmt.Print(ev.Text())
//	}
//
// Streams left open are closed when garbage collected, but callers should
// Close them (or finish an All loop) to release the connection promptly.
//
// Collect and Accumulator fold a stream into its generated text.
package stream
