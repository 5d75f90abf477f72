package server

// Route path constants for the end-user forms.
// Protocol endpoints are owned by the provider package.
const (
	// Interaction Routes
	RouteInteraction         = "/interaction/{uid}"
	RouteInteractionUsername = "/interaction/{uid}/username"
	RouteInteractionVerify   = "/interaction/{uid}/verify"
	RouteInteractionConsent  = "/interaction/{uid}/consent"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)
