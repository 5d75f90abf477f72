// Package fakesite serves a minimal imitation of the community site for tests:
// login form, chat token page, conversation lookup, message delivery and profile pages.
package fakesite

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const ActionToken = "action-token-1"

// Account is a member of the fake site
type Account struct {
	ID            int64
	Handle        string
	DisplayName   string
	AvatarURL     string
	Level         string
	SignupDate    string
	LastLoginDate string
	MessageCount  string
	PostsOnPage   int  // Page of recent messages where the account's post appears, 0 for none
	BlocksBot     bool // Direct messages to this account report blocked
}

// Message is a direct message received by the fake site
type Message struct {
	To    string
	Body  string
	Token string
}

// Site is a fake community site backed by httptest
type Site struct {
	*httptest.Server

	Username string
	Password string

	// Captcha makes the login page carry the bot challenge marker
	Captcha atomic.Bool
	// OmitCookies makes a login submission succeed without setting session cookies
	OmitCookies atomic.Bool
	// FailNext makes the next n protected requests answer 500 regardless of the session
	FailNext atomic.Int32
	// StallNext makes the next n protected requests hang until the caller gives up
	StallNext atomic.Int32

	logins     atomic.Int32
	loginDelay atomic.Int64
	requests   atomic.Int32
	mu         sync.Mutex
	current    string // auth cookie value of the only valid session
	accounts   map[string]Account
	messages   []Message
}

// New starts a fake site with the given accounts
func New(username, password string, accounts ...Account) *Site {
	s := &Site{
		Username: username,
		Password: password,
		accounts: make(map[string]Account),
	}
	for _, a := range accounts {
		s.accounts[strings.ToLower(a.Handle)] = a
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /account/login", s.loginPage)
	mux.HandleFunc("POST /account/login", s.loginSubmit)
	mux.HandleFunc("GET /chat", s.protected(s.chatPage))
	mux.HandleFunc("POST /chat", s.protected(s.conversation))
	mux.HandleFunc("POST /chat/{id}", s.protected(s.deliver))
	mux.HandleFunc("GET /profile/{handle}", s.protected(s.profile))
	mux.HandleFunc("GET /profile/{handle}/messages", s.protected(s.posts))
	s.Server = httptest.NewServer(mux)
	return s
}

// SetLoginDelay holds every later login submission for d, widening the window for concurrent failures
func (s *Site) SetLoginDelay(d time.Duration) {
	s.loginDelay.Store(int64(d))
}

// Logins reports how many login submissions carried valid credentials
func (s *Site) Logins() int {
	return int(s.logins.Load())
}

// Requests reports how many protected requests reached the site
func (s *Site) Requests() int {
	return int(s.requests.Load())
}

// ExpireSession makes the site forget the current bot session
func (s *Site) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
}

// Messages returns the direct messages delivered so far
func (s *Site) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Site) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.Captcha.Load() {
		fmt.Fprint(w, `<html><body><div class="h-captcha" data-sitekey="x"></div></body></html>`)
		return
	}
	fmt.Fprint(w, `<html><body><form method="post"><input type="hidden" name="token" value="form-token"><input name="login"><input name="password"></form></body></html>`)
}

func (s *Site) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.FormValue("token") != "form-token" || r.FormValue("login") != s.Username || r.FormValue("password") != s.Password {
		http.Redirect(w, r, "/account/login", http.StatusFound)
		return
	}

	if d := time.Duration(s.loginDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	n := s.logins.Add(1)
	if s.OmitCookies.Load() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	auth := "auth-" + strconv.Itoa(int(n))
	s.mu.Lock()
	s.current = auth
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "auth", Value: auth, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "sess", Value: "sess-" + strconv.Itoa(int(n)), Path: "/", HttpOnly: true})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Site) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.StallNext.Load() > 0 {
			s.StallNext.Add(-1)
			<-r.Context().Done()
			return
		}
		if s.FailNext.Load() > 0 {
			s.FailNext.Add(-1)
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		cookie, err := r.Cookie("auth")
		s.mu.Lock()
		valid := err == nil && s.current != "" && cookie.Value == s.current
		s.mu.Unlock()
		if !valid {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Site) account(handle string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(handle)]
	return a, ok
}

func (s *Site) chatPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body><div id="chat" data-token="%s"></div></body></html>`, ActionToken)
}

func (s *Site) conversation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("token") != ActionToken {
		http.Error(w, "bad token", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	a, ok := s.account(r.FormValue("username"))
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "unknown user"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"id": a.ID})
}

func (s *Site) deliver(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("token") != ActionToken {
		http.Error(w, "bad token", http.StatusForbidden)
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

	var recipient *Account
	s.mu.Lock()
	for _, a := range s.accounts {
		if a.ID == id {
			a := a
			recipient = &a
			break
		}
	}
	if recipient != nil && !recipient.BlocksBot {
		s.messages = append(s.messages, Message{To: recipient.Handle, Body: r.FormValue("message"), Token: r.FormValue("token")})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case recipient == nil:
		http.Error(w, `{"error":"no conversation"}`, http.StatusNotFound)
	case recipient.BlocksBot:
		_ = json.NewEncoder(w).Encode(map[string]any{"blocked": "yes"})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"blocked": "no"})
	}
}

func (s *Site) profile(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(r.PathValue("handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<div class="profile-cover">
  <div class="profile-cover-avatar"><img src="%s"></div>
  <div class="profile-cover-username">%s</div>
  <div class="profile-cover-badges"><span class="profile-cover-badge">%s</span></div>
</div>
<div class="profile-blocs">
  <div class="profile-bloc">
    <div class="item"><div class="item-label">Inscription</div><div class="item-value">%s</div></div>
    <div class="item"><div class="item-label">Dernière connexion</div><div class="item-value">%s</div></div>
    <div class="item"><div class="item-label">Messages</div><div class="item-value">%s</div></div>
  </div>
  <div class="profile-bloc"><div class="item"><div class="item-value">ignored</div></div></div>
</div>
</body></html>`,
		html.EscapeString(a.AvatarURL), html.EscapeString(a.DisplayName), html.EscapeString(a.Level),
		html.EscapeString(a.SignupDate), html.EscapeString(a.LastLoginDate), html.EscapeString(a.MessageCount))
}

func (s *Site) posts(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(r.PathValue("handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body><div class="messages">`)
	// A quoted post by someone else always comes first
	fmt.Fprint(w, `<div class="message" data-user-id="999"><span class="message-username">SomeoneElse</span><p>quote</p></div>`)
	if a.PostsOnPage == page {
		fmt.Fprintf(w, `<div class="message" data-user-id="%d"><span class="message-username">%s</span><p>hello</p></div>`,
			a.ID, html.EscapeString(a.Handle))
	}
	fmt.Fprint(w, `</div></body></html>`)
}
