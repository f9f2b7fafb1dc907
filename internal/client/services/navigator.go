package services

// Navigator is the UI surface the session layer drives.
type Navigator interface {
	// Navigate moves the user to an application path, e.g. the login page.
	Navigate(path string)
	// OpenURL hands an external URL (an OAuth authorization page) to the user.
	OpenURL(rawURL string) error
	// PromptReload asks the user to reload because the session could not be
	// recovered.
	PromptReload(reason string)
}
