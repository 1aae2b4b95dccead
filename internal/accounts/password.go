package accounts

import (
	"golang.org/x/crypto/bcrypt"

	"duskftpd/internal/ftperr"
)

// HashPassword bcrypt-hashes password at the default cost, exactly the
// teacher's auth.HashPassword (OmkarMahajan07-HPE_Project/Ftpserver/
// auth/auth.go) but returning a typed *ftperr.Error instead of a bare
// error, per this repo's error-handling design.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", ftperr.NewStoreError("hash password: %v", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
