package utils

import "golang.org/x/crypto/bcrypt"

// dummyHash is compared against when the user does not exist, so an
// unknown e-mail costs as much time as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
    b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
    if err != nil {
        return "", err
    }
    return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
    return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnPasswordCheck runs a bcrypt comparison that always fails.
func BurnPasswordCheck(plain string) {
    _ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
