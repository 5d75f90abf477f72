package upstream_test

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func profilePage(count string) string {
	return `<div class="profile-cover-username"> Kheyvarnish </div>
<div class="profile-cover-badges"><span class="profile-cover-badge">Niveau 3</span><span class="profile-cover-badge">Modo</span></div>
<div class="profile-blocs"><div class="profile-bloc">
<div class="item"><div class="item-value">01/01/2020</div></div>
<div class="item"><div class="item-value">Hier</div></div>
<div class="item"><div class="item-value">` + count + `</div></div>
</div></div>`
}

func TestLayoutByName(t *testing.T) {
	l, err := upstream.LayoutByName("cover-v2")
	require.NoError(t, err)
	require.Equal(t, "cover-v2", l.Name())

	_, err = upstream.LayoutByName("cover-v1")
	require.ErrorContains(t, err, "cover-v2")
}

func TestCoverV2Layout_Tokens(t *testing.T) {
	l := upstream.CoverV2Layout{}

	token, ok := l.LoginToken(parse(t, `<form><input name="token" value="abc"></form>`))
	require.True(t, ok)
	require.Equal(t, "abc", token)

	_, ok = l.LoginToken(parse(t, `<form><input name="token" value="  "></form>`))
	require.False(t, ok)

	token, ok = l.ActionToken(parse(t, `<div id="chat" data-token="xyz"></div>`))
	require.True(t, ok)
	require.Equal(t, "xyz", token)

	_, ok = l.ActionToken(parse(t, `<div id="chat"></div>`))
	require.False(t, ok)
}

func TestCoverV2Layout_ProfileFields(t *testing.T) {
	l := upstream.CoverV2Layout{}

	fields, ok := l.ProfileFields(parse(t, profilePage("1.234 messages")))
	require.True(t, ok)
	require.Equal(t, "Kheyvarnish", fields.DisplayName)
	require.Equal(t, "Niveau 3", fields.Level, "only the first badge is the level")
	require.Equal(t, "01/01/2020", fields.SignupDate)
	require.Equal(t, "Hier", fields.LastLoginDate)
	require.Equal(t, 1234, fields.MessageCount)
	require.Empty(t, fields.AvatarURL)
}

func TestCoverV2Layout_MessageCounts(t *testing.T) {
	l := upstream.CoverV2Layout{}

	tests := []struct {
		raw   string
		count int
		ok    bool
	}{
		{raw: "0", count: 0, ok: true},
		{raw: "12 345 messages", count: 12345, ok: true},
		{raw: "12,345", count: 12345, ok: true},
		{raw: "42 messages, 3 topics", count: 42, ok: true},
		{raw: "", ok: false},
		{raw: "messages", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			fields, ok := l.ProfileFields(parse(t, profilePage(tt.raw)))
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.count, fields.MessageCount)
			}
		})
	}
}

func TestCoverV2Layout_ProfileFieldsIncomplete(t *testing.T) {
	l := upstream.CoverV2Layout{}

	_, ok := l.ProfileFields(parse(t, `<div class="profile-cover-username">Kheyvarnish</div>`))
	require.False(t, ok)

	_, ok = l.ProfileFields(parse(t, `<html><body>Page introuvable</body></html>`))
	require.False(t, ok)
}

func TestCoverV2Layout_AuthorID(t *testing.T) {
	l := upstream.CoverV2Layout{}
	doc := parse(t, `
<div class="message" data-user-id="7"><span class="message-username">Someone</span></div>
<div class="message" data-user-id="abc"><span class="message-username">Kheyvarnish</span></div>
<div class="message" data-user-id="4242"><span class="message-username">kheyvarnish</span></div>`)

	id, ok := l.AuthorID(doc, "Kheyvarnish")
	require.True(t, ok)
	require.Equal(t, int64(4242), id)

	_, ok = l.AuthorID(doc, "nobody")
	require.False(t, ok)
}
