package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Client kinds that decide where a federated sign-in lands.
const (
	ClientWeb    = "web"
	ClientMobile = "mobile"
)

// ErrInvalidState is returned for a tampered, expired or mismatched OAuth state.
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims is the payload of the signed OAuth state parameter.
type StateClaims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks the HS256-signed state carried through a
// provider round trip. The nonce (jti) is also kept in the session so a
// state minted for one browser is useless in another.
type StateSigner struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (s *StateSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue returns the signed state and the nonce embedded in it.
func (s *StateSigner) Issue(client string) (state, nonce string, err error) {
	if client != ClientMobile {
		client = ClientWeb
	}
	nonce, err = GenerateSecureToken()
	if err != nil {
		return "", "", err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	now := s.now()
	claims := StateClaims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}
	return state, nonce, nil
}

// Parse verifies state against the nonce remembered for this session and
// returns the client kind.
func (s *StateSigner) Parse(state, expectedNonce string) (string, error) {
	var claims StateClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if expectedNonce == "" || claims.ID != expectedNonce {
		return "", fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return claims.Client, nil
}
