package api

// UserPermissions is the set of capability flags a registered identity can
// request. The server evaluates them; the client only carries them.
type UserPermissions struct {
	Superuser       bool `json:"perm_superuser"`
	LoadLLM         bool `json:"perm_load_llm"`
	UnloadLLM       bool `json:"perm_unload_llm"`
	DownloadLLM     bool `json:"perm_download_llm"`
	Session         bool `json:"perm_session"` // create_session and prompt_session
	RequestDownload bool `json:"perm_request_download"`
	RequestLoad     bool `json:"perm_request_load"`
	RequestUnload   bool `json:"perm_request_unload"`
	ViewLLMs        bool `json:"perm_view_llms"`
	BareModel       bool `json:"perm_bare_model"`
}

// UserInfo describes the calling identity. ID and APIKey are needed to log
// back in later; any permission requests are attached to this identity.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`

	UserPermissions
}
