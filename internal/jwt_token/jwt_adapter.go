package jwttoken

import (
	"relay/pkg/correlation"
)

// JWTServiceAdapter bridges the token service to the HTTP auth middleware,
// which only needs a principal back.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (correlation.Principal, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return correlation.Principal{}, err
	}
	return claims.Principal(), nil
}
