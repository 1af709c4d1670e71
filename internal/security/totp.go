package security

import (
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret creates a new TOTP secret for a seller account and
// returns the shared secret plus the otpauth:// provisioning URL.
func GenerateTOTPSecret(issuer, account string) (secret, url string, err error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if errGenerate != nil {
		return "", "", errGenerate
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP reports whether the code matches the secret for the current
// time step.
func ValidateTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
