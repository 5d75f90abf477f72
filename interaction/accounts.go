package interaction

import (
	"context"

	"github.com/jrsteele09/onche-connect/provider"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProfileFetcher reads community profiles
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, handle string) (*upstream.Profile, error)
}

var _ ProfileFetcher = (*upstream.Client)(nil)

// Accounts resolves provider accounts to community profiles
type Accounts struct {
	profiles ProfileFetcher
}

// NewAccounts creates the account lookup used by the provider
func NewAccounts(profiles ProfileFetcher) (*Accounts, error) {
	if profiles == nil {
		return nil, errors.New("[NewAccounts] profiles is required")
	}
	return &Accounts{profiles: profiles}, nil
}

// FindAccount returns the account for id. Accounts are the handles that passed PIN
// verification, so every id resolves; claims are fetched when asked for.
func (a *Accounts) FindAccount(_ context.Context, id string) (provider.Account, error) {
	return &account{id: id, profiles: a.profiles}, nil
}

type account struct {
	id       string
	profiles ProfileFetcher
}

func (a *account) AccountID() string {
	return a.id
}

// Claims fetches the profile afresh. When it cannot be read the subject alone is returned.
func (a *account) Claims(ctx context.Context, use, scope string) (map[string]any, error) {
	profile, err := a.profiles.FetchProfile(ctx, a.id)
	if err != nil {
		log.Warn().Err(err).Str("account_id", a.id).Str("use", use).Msg("Profile unavailable for claims")
		return map[string]any{"sub": a.id}, nil
	}
	if profile == nil {
		log.Warn().Str("account_id", a.id).Str("use", use).Msg("Profile not found for claims")
		return map[string]any{"sub": a.id}, nil
	}
	return ProfileClaims(a.id, profile), nil
}

// ProfileClaims projects a community profile onto claims
func ProfileClaims(sub string, profile *upstream.Profile) map[string]any {
	claims := map[string]any{
		"sub":                   sub,
		"id":                    profile.ID,
		"name":                  profile.DisplayName,
		"onche_level":           profile.Level,
		"onche_signup_date":     profile.SignupDate,
		"onche_last_login_date": profile.LastLoginDate,
		"onche_msg_count":       profile.MessageCount,
	}
	if profile.AvatarURL != "" {
		claims["picture"] = profile.AvatarURL
	}
	return claims
}
