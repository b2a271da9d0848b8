package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the payload of an access token issued by the auth backend.
type accessClaims struct {
	Email       string `json:"email"`
	UserRole    string `json:"user_role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTAuth resolves HS256 bearer tokens signed with a shared secret.
type JWTAuth struct {
	secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

func (a *JWTAuth) Resolve(ctx context.Context, authorization string) (Credentials, error) {
	parts := strings.Fields(authorization)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Credentials{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if claims.Subject == "" {
		return Credentials{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	role := claims.UserRole
	if role == "" {
		role = claims.AppMetadata.Role
	}
	if role == "" {
		role = RoleUser
	}

	return Credentials{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}
