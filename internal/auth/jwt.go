package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Identity is what a classroll token asserts about its bearer.
type Identity struct {
	UserID    string
	SessionID string
	DeviceID  string
}

// Claims represents JWT payload.
type Claims struct {
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
	Kind      string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the bearer identity carried by the claims.
func (c Claims) Identity() Identity {
	return Identity{UserID: c.Subject, SessionID: c.SessionID, DeviceID: c.DeviceID}
}

// Issuer signs token pairs.
type Issuer struct {
	Name       string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an HS256 token issuer.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{Name: name, Key: key, AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens.
func (i *Issuer) Issue(id Identity) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	accessToken, err := i.sign(id, KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := i.sign(id, KindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i *Issuer) sign(id Identity, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		SessionID: id.SessionID,
		DeviceID:  id.DeviceID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.Name,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Key))
}

// Parse validates a token of the given kind and returns claims.
func (i *Issuer) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(i.Key), nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Kind != kind {
		return Claims{}, errors.New("wrong token kind")
	}
	if claims.SessionID == "" {
		return Claims{}, errors.New("token carries no session")
	}
	return *claims, nil
}
