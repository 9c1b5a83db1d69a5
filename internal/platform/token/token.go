// Package token validates bearer tokens and resolves them to actors. Token
// issuance belongs to the external identity provider; this side only verifies
// signatures and re-reads role and verification from the profile store so the
// portal never trusts a client-supplied role.
package token

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"civicdesk/internal/identity"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
)

// Claims is the shape expected from the identity provider's access tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Resolver validates tokens and loads the actor's current profile.
type Resolver struct {
	signingKey []byte
	profiles   identity.Store
}

func NewResolver(signingKey string, profiles identity.Store) *Resolver {
	return &Resolver{signingKey: []byte(signingKey), profiles: profiles}
}

// ResolveActor implements middleware.ActorResolver.
func (r *Resolver) ResolveActor(ctx context.Context, tokenString string) (identity.Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Actor{}, dErrors.New(dErrors.CodeUnauthenticated, "token has expired")
		}
		return identity.Actor{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return identity.Actor{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token claims")
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return identity.Actor{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token subject")
	}

	profile, err := r.profiles.Get(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return identity.Actor{}, dErrors.New(dErrors.CodeUnauthenticated, "unknown account")
	}
	if err != nil {
		return identity.Actor{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile lookup failed")
	}

	return profile.Actor(), nil
}
