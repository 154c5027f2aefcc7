package oauth2

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	ac "github.com/panyam/authcore"
)

// InstagramEndpoint is the Instagram business login endpoint. The token
// endpoint only accepts client credentials in the form body.
var InstagramEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.instagram.com/oauth/authorize",
	TokenURL:  "https://api.instagram.com/oauth/access_token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const InstagramProfileURL = "https://graph.instagram.com/me?fields=id,username,profile_picture_url"

// Instagram never discloses an email, so accounts are keyed on
// <id>@instagram.com.
type Instagram struct {
	*baseProvider
}

var _ ac.ProviderAdapter = (*Instagram)(nil)

func NewInstagram(cfg Config) (*Instagram, error) {
	if err := cfg.validate(ac.ProviderInstagram); err != nil {
		return nil, err
	}
	return &Instagram{
		baseProvider: newBaseProvider(ac.ProviderInstagram, cfg, InstagramEndpoint,
			[]string{"instagram_business_basic"}, InstagramProfileURL),
	}, nil
}

func (i *Instagram) ResolveFederatedIdentity(ctx context.Context, code string) (*ac.FederatedProfile, error) {
	token, err := i.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	var p struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url"`
	}
	if err := i.getProfile(ctx, token, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("instagram profile missing id")
	}
	return &ac.FederatedProfile{
		Provider:   ac.ProviderInstagram,
		ProviderID: p.ID,
		Email:      fallbackEmail(p.ID, "instagram.com"),
		Name:       p.Username,
		Avatar:     p.ProfilePictureURL,
	}, nil
}
