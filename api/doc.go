// Package api defines the wire types exchanged with a pantry server.
//
// Field names follow the server's JSON exactly. Types the server leaves open,
// such as model parameters and connector config, are carried as Value, a
// closed set of JSON variants that callers inspect at the point of use:
//
//	temp, ok := status.Parameters.Get("temperature").AsFloat()
//
// # Tagged Unions
//
// The server tags union bodies with a "type" field. EventPayload and
// UserRequest follow the same shape: a Kind/Type field naming the variant and
// one populated pointer per variant.
//
//	ev, err := api.ParseEvent(data)
//	if ev.Event.Kind == api.EventPromptProgress {
//	    fmt.Print(ev.Event.Progress.Next)
//	}
//
// # Schemas
//
// Schema returns the JSON Schema of a wire type, which is handy when writing a
// compatible server or validating captured traffic.
package api
