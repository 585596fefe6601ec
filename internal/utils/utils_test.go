package utils

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
    tok, err := NewAccessToken("s3cret", 42, "USER", 5)
    if err != nil {
        t.Fatalf("NewAccessToken: %v", err)
    }
    id, role, err := ParseAccessToken("s3cret", tok.Token)
    if err != nil {
        t.Fatalf("ParseAccessToken: %v", err)
    }
    if id != 42 || role != "USER" {
        t.Errorf("got id=%d role=%q", id, role)
    }
    if _, _, err := ParseAccessToken("other", tok.Token); err == nil {
        t.Error("token verified with the wrong secret")
    }
}

func TestParseAccessTokenRejects(t *testing.T) {
    expired, _ := NewAccessToken("s", 1, "USER", -1)
    none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}).
        SignedString(jwt.UnsafeAllowNoneSignatureType)
    noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).
        SignedString([]byte("s"))

    for name, raw := range map[string]string{"expired": expired.Token, "alg none": none, "no subject": noSub, "garbage": "abc"} {
        t.Run(name, func(t *testing.T) {
            if _, _, err := ParseAccessToken("s", raw); err != ErrInvalidToken {
                t.Errorf("err = %v, want ErrInvalidToken", err)
            }
        })
    }
}

func TestRefreshToken(t *testing.T) {
    a, err := NewRefreshToken(7)
    if err != nil {
        t.Fatalf("NewRefreshToken: %v", err)
    }
    b, _ := NewRefreshToken(7)
    if len(a.Raw) != 96 || a.Raw == b.Raw {
        t.Errorf("raw tokens %q %q", a.Raw, b.Raw)
    }
    if HashRefreshRaw(a.Raw) != HashRefreshRaw(a.Raw) || len(HashRefreshRaw(a.Raw)) != 64 {
        t.Error("hash is not a stable sha256 hex digest")
    }
}

func TestPasswordHashing(t *testing.T) {
    h, err := HashPassword("correct-horse", bcrypt.MinCost)
    if err != nil {
        t.Fatalf("HashPassword: %v", err)
    }
    if !VerifyPassword(h, "correct-horse") || VerifyPassword(h, "wrong-horse") {
        t.Error("VerifyPassword gave the wrong answer")
    }
}
