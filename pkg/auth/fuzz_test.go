package auth

import (
	"context"
	"encoding/base64"
	"testing"
)

// FuzzJWTAuthenticate fuzzes JWT parsing to find crashes or panics.
func FuzzJWTAuthenticate(f *testing.F) {
	f.Add("")
	f.Add(".")
	f.Add("..")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.signature")

	invalidJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	f.Add("header." + invalidJSON + ".sig")

	a, err := NewJWTAuthenticator(JWTConfig{Issuer: "https://issuer.example", SigningKey: []byte("fuzz-signing-key")})
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(_ *testing.T, token string) {
		_, _ = a.Authenticate(WithToken(context.Background(), token))
	})
}
