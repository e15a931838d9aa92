package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "storefront",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseSessionToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintSessionToken(cfg, now, SessionTokenPayload{
		UserID: "uid-abc123",
		Email:  "shopper@example.com",
		Role:   enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}

	claims, err := ParseSessionToken(cfg, token)
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}
	if claims.UserID() != "uid-abc123" {
		t.Fatalf("unexpected subject %s", claims.UserID())
	}
	if claims.EffectiveRole() != enums.UserRoleAdmin {
		t.Fatalf("unexpected role %s", claims.EffectiveRole())
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestEffectiveRoleDefaultsToUser(t *testing.T) {
	claims := &SessionTokenClaims{}
	if claims.EffectiveRole() != enums.UserRoleUser {
		t.Fatalf("expected user role, got %s", claims.EffectiveRole())
	}
}

func TestParseSessionTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintSessionToken(cfg, time.Now(), SessionTokenPayload{UserID: "u1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := cfg
	other.Secret = "different"
	if _, err := ParseSessionToken(other, token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseSessionTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintSessionToken(cfg, time.Now().Add(-2*time.Hour), SessionTokenPayload{UserID: "u1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseSessionToken(cfg, token); err == nil {
		t.Fatal("expected expired token error")
	}
}

func TestParseSessionTokenRejectsMissingSubject(t *testing.T) {
	cfg := testJWTConfig()
	claims := SessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(cfg, token); err == nil {
		t.Fatal("expected missing subject error")
	}
}

func TestMintSessionTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintSessionToken(cfg, time.Now(), SessionTokenPayload{}); err == nil {
		t.Fatal("expected missing user id error")
	}
	if _, err := MintSessionToken(cfg, time.Now(), SessionTokenPayload{UserID: "u1", Role: "root"}); err == nil {
		t.Fatal("expected invalid role error")
	}
	cfg.Secret = ""
	if _, err := MintSessionToken(cfg, time.Now(), SessionTokenPayload{UserID: "u1"}); err == nil {
		t.Fatal("expected missing secret error")
	}
}
