package upstream

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// ProfileFields are the attributes read from a public profile page
type ProfileFields struct {
	DisplayName   string
	AvatarURL     string // Optional, accounts without an avatar have none
	Level         string
	SignupDate    string
	LastLoginDate string
	MessageCount  int
}

// Profile is a resolved account on the community site. A Profile always carries the
// numeric account ID; a page from which no ID could be resolved never produces one.
type Profile struct {
	ID     int64
	Handle string
	ProfileFields
}

// Layout extracts typed values from the community site's pages.
// Each implementation is tied to one version of the markup. Every method either returns
// a complete value and true, or the zero value and false.
type Layout interface {
	Name() string
	LoginToken(doc *goquery.Document) (string, bool)
	ActionToken(doc *goquery.Document) (string, bool)
	ProfileFields(doc *goquery.Document) (ProfileFields, bool)
	AuthorID(doc *goquery.Document, handle string) (int64, bool)
}

var (
	layoutsMu sync.RWMutex
	layouts   = map[string]Layout{}
)

func init() {
	RegisterLayout(CoverV2Layout{})
}

// RegisterLayout makes a layout selectable by name, replacing any layout with the same name
func RegisterLayout(l Layout) {
	layoutsMu.Lock()
	defer layoutsMu.Unlock()
	layouts[l.Name()] = l
}

// LayoutByName returns the registered layout called name
func LayoutByName(name string) (Layout, error) {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()
	l, ok := layouts[name]
	if !ok {
		return nil, fmt.Errorf("unknown upstream layout %q (available: %s)", name, strings.Join(layoutNames(), ", "))
	}
	return l, nil
}

func layoutNames() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoverV2Layout reads the profile pages built around the ".profile-cover" header
type CoverV2Layout struct{}

var _ Layout = CoverV2Layout{}

func (CoverV2Layout) Name() string {
	return "cover-v2"
}

func (CoverV2Layout) LoginToken(doc *goquery.Document) (string, bool) {
	return nonEmptyAttr(doc.Find(`input[name="token"]`).First(), "value")
}

func (CoverV2Layout) ActionToken(doc *goquery.Document) (string, bool) {
	return nonEmptyAttr(doc.Find("#chat").First(), "data-token")
}

func (CoverV2Layout) ProfileFields(doc *goquery.Document) (ProfileFields, bool) {
	name := cleanText(doc.Find(".profile-cover-username").First())
	level := cleanText(doc.Find(".profile-cover-badges > .profile-cover-badge").First())

	items := doc.Find(".profile-blocs > .profile-bloc").First().Find(".item")
	signup := cleanText(items.Eq(0).Find(".item-value"))
	lastLogin := cleanText(items.Eq(1).Find(".item-value"))
	count, countOK := parseCount(cleanText(items.Eq(2).Find(".item-value")))

	if name == "" || level == "" || signup == "" || lastLogin == "" || !countOK {
		return ProfileFields{}, false
	}

	avatar, _ := nonEmptyAttr(doc.Find(".profile-cover-avatar img").First(), "src")
	return ProfileFields{
		DisplayName:   name,
		AvatarURL:     avatar,
		Level:         level,
		SignupDate:    signup,
		LastLoginDate: lastLogin,
		MessageCount:  count,
	}, true
}

// AuthorID finds a post written by handle and reads the numeric author id it carries
func (CoverV2Layout) AuthorID(doc *goquery.Document, handle string) (int64, bool) {
	var id int64
	doc.Find(".message[data-user-id]").EachWithBreak(func(_ int, post *goquery.Selection) bool {
		if !strings.EqualFold(cleanText(post.Find(".message-username").First()), handle) {
			return true
		}
		raw, _ := post.Attr("data-user-id")
		parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || parsed <= 0 {
			return true
		}
		id = parsed
		return false
	})
	return id, id > 0
}

func nonEmptyAttr(sel *goquery.Selection, attr string) (string, bool) {
	value, ok := sel.Attr(attr)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func cleanText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// parseCount reads the leading counter of a value such as "12 345 messages" or "12.345",
// skipping thousands separators
func parseCount(s string) (int, bool) {
	var digits strings.Builder
scan:
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == ',':
			continue
		case digits.Len() == 0:
			return 0, false
		default:
			break scan
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
