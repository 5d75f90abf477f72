package interaction

import "net/http"

// Page names
const (
	PageLogin   = "login"
	PageOTP     = "otp"
	PageConsent = "consent"
)

// Page is the data a form is rendered with
type Page struct {
	Name     string
	UID      string
	ClientID string
	Username string
	Session  string // Display token shown on the PIN form, masked after a mismatch
	Scopes   []string
	Error    string
}

// Renderer writes a page to the response
type Renderer interface {
	Render(w http.ResponseWriter, status int, page Page)
}
