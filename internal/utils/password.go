package utils

import "golang.org/x/crypto/bcrypt"

// dummyHash is compared against when the account does not exist so a
// failed login costs the same whether or not the email is known.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dispenser-dummy-password"), bcrypt.DefaultCost)

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

// BurnPasswordCheck runs a bcrypt comparison whose result is discarded.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
