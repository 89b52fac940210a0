// Package sse decodes text/event-stream bodies into frames.
//
// The decoder follows the EventSource framing rules: fields are "name:
// value" lines, lines starting with ":" are comments, data lines are joined
// with "\n" and a blank line dispatches the frame. Blocks without data come
// back as keep-alive frames so callers can tell the stream is alive; callers
// that only want messages skip frames where KeepAlive is true.
//
//	dec := sse.NewDecoder(resp.Body)
//	for {
//	    f, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    if f.KeepAlive() {
//	        continue
//	    }
//	    handle(f.Data)
//	}
package sse
