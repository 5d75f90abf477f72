package pin_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/pin"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeUpstream records the messages the exchange sends
type fakeUpstream struct {
	profiles   map[string]*upstream.Profile
	profileErr error
	tokenErr   error
	sendErr    error
	blocked    bool
	sent       []string
}

func (f *fakeUpstream) FetchProfile(_ context.Context, handle string) (*upstream.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profiles[handle], nil
}

func (f *fakeUpstream) FetchActionToken(context.Context) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "action-token", nil
}

func (f *fakeUpstream) SendDirectMessage(_ context.Context, toHandle, body, token string) (bool, error) {
	if f.sendErr != nil {
		return false, f.sendErr
	}
	if f.blocked {
		return false, nil
	}
	f.sent = append(f.sent, toHandle+"|"+body+"|"+token)
	return true, nil
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		profiles: map[string]*upstream.Profile{
			testHandle: {ID: 4242, Handle: testHandle, ProfileFields: upstream.ProfileFields{DisplayName: "Kheyvarnish"}},
		},
	}
}

type exchangeFixture struct {
	mr       *miniredis.Miniredis
	store    *pin.RedisStore
	upstream *fakeUpstream
	exchange *pin.Exchange
}

func setupExchange(t *testing.T) *exchangeFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := pin.NewRedisStore(rdb, "", pin.WithCodeGenerator(func() (string, error) { return "420197", nil }))
	up := newFakeUpstream()
	exchange, err := pin.NewExchange(store, up, pin.WithDisplayTokenFunc(func() (string, error) { return "5eb3a1c0", nil }))
	require.NoError(t, err)

	return &exchangeFixture{mr: mr, store: store, upstream: up, exchange: exchange}
}

func TestNewExchange_Validation(t *testing.T) {
	_, err := pin.NewExchange(nil, newFakeUpstream())
	require.Error(t, err)
	_, err = pin.NewExchange(pin.NewInMemoryStore(), nil)
	require.Error(t, err)
}

func TestExchange_EndToEnd(t *testing.T) {
	f := setupExchange(t)
	ctx := context.Background()
	key := f.store.Key(testHandle, testUID)

	display, err := f.exchange.Send(ctx, testHandle, testUID)
	require.NoError(t, err)
	require.Equal(t, "5eb3a1c0", display)

	code, err := f.mr.Get(key)
	require.NoError(t, err)
	require.True(t, pin.ValidCode(code))
	require.InDelta(t, 600, f.mr.TTL(key).Seconds(), 1)

	require.Len(t, f.upstream.sent, 1)
	require.Equal(t,
		"kheyvarnish|[b][ONCHE CONNECT][/b] Code PIN pour la session [i][5eb3a1c0][/i]: [b]420197[/b]|action-token",
		f.upstream.sent[0])

	ok, err := f.exchange.Verify(ctx, testHandle, testUID, "123456")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, f.mr.Exists(key), "a wrong guess leaves the entry until it expires")

	digits := []string{"4", "2", "0", "1", "9", "7"}
	ok, err = f.exchange.Verify(ctx, testHandle, testUID, strings.Join(digits, ""))
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, f.mr.Exists(key))
}

func TestExchange_UnknownSubjectIssuesNothing(t *testing.T) {
	f := setupExchange(t)

	_, err := f.exchange.Send(context.Background(), "nobody", testUID)
	require.ErrorIs(t, err, apperrors.ErrSubjectUnknown)
	require.False(t, f.mr.Exists(f.store.Key("nobody", testUID)))
	require.Empty(t, f.upstream.sent)
}

func TestExchange_ProfileLookupFails(t *testing.T) {
	f := setupExchange(t)
	f.upstream.profileErr = apperrors.ErrUpstreamUnavailable

	_, err := f.exchange.Send(context.Background(), testHandle, testUID)
	require.ErrorIs(t, err, apperrors.ErrSubjectUnknown)
	require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	require.False(t, f.mr.Exists(f.store.Key(testHandle, testUID)))
}

func TestExchange_DeliveryFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeUpstream)
		wantErr error
	}{
		{
			name:    "blocked",
			setup:   func(u *fakeUpstream) { u.blocked = true },
			wantErr: apperrors.ErrDeliveryFailed,
		},
		{
			name:    "action token unavailable",
			setup:   func(u *fakeUpstream) { u.tokenErr = apperrors.ErrUpstreamUnavailable },
			wantErr: apperrors.ErrDeliveryFailed,
		},
		{
			name:    "send fails",
			setup:   func(u *fakeUpstream) { u.sendErr = errors.New("boom") },
			wantErr: apperrors.ErrDeliveryFailed,
		},
		{
			name:    "recipient unresolvable",
			setup:   func(u *fakeUpstream) { u.sendErr = apperrors.ErrRecipientUnresolvable },
			wantErr: apperrors.ErrSubjectUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupExchange(t)
			tt.setup(f.upstream)

			display, err := f.exchange.Send(context.Background(), testHandle, testUID)
			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, display)
		})
	}
}
