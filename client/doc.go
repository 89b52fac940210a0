// Package client is the pantry API for applications.
//
// Register once and store the credentials:
//
//	perms := api.UserPermissions{Session: true, RequestLoad: true, ViewLLMs: true}
//	c, req, err := client.Register(ctx, "my project", perms)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	creds := c.Credentials("my project")
//	_ = client.WriteCredentials("", &creds)
//
//	// The permission request is accepted in the pantry UI.
//	_, err = c.AwaitRequest(ctx, req.ID, 0)
//
// Later runs log in without a call:
//
//	c := client.Login(userID, apiKey)
//
// Sessions hold inference state. Prompt streams events as they are produced:
//
//	sess, err := c.CreateSession(ctx, nil)
//	s, err := sess.Prompt(ctx, "About me: ", nil)
//	for ev := range s.All() {
//	    fmt.Print(ev.Text())
//	}
//
// Requests go to the unix socket first and to the network address if the
// socket cannot be reached; see package transport.
//
// Most operations come in two forms: a request that the server owner accepts
// in the UI (RequestLoad, RequestDownload, ...) and a direct call that needs
// the matching permission (LoadLLM, DownloadLLM, ...). The _Flex variants let
// the server pick the LLM from an api.LLMFilter and api.LLMPreference.
package client
