package oauth2

import (
	"context"
	"errors"

	"golang.org/x/oauth2/facebook"

	ac "github.com/panyam/authcore"
)

// FacebookProfileURL is the Graph API call made after the code exchange.
const FacebookProfileURL = "https://graph.facebook.com/me?fields=id,name,email,picture"

type Facebook struct {
	*baseProvider
}

var _ ac.ProviderAdapter = (*Facebook)(nil)

func NewFacebook(cfg Config) (*Facebook, error) {
	if err := cfg.validate(ac.ProviderFacebook); err != nil {
		return nil, err
	}
	return &Facebook{
		baseProvider: newBaseProvider(ac.ProviderFacebook, cfg, facebook.Endpoint,
			[]string{"email", "public_profile"}, FacebookProfileURL),
	}, nil
}

type facebookProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// ResolveFederatedIdentity falls back to <id>@facebook.com when the user
// withheld their email.
func (f *Facebook) ResolveFederatedIdentity(ctx context.Context, code string) (*ac.FederatedProfile, error) {
	token, err := f.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	var p facebookProfile
	if err := f.getProfile(ctx, token, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("facebook profile missing id")
	}
	email := p.Email
	if email == "" {
		email = fallbackEmail(p.ID, "facebook.com")
	}
	return &ac.FederatedProfile{
		Provider:   ac.ProviderFacebook,
		ProviderID: p.ID,
		Email:      email,
		Name:       p.Name,
		Avatar:     p.Picture.Data.URL,
	}, nil
}
