package security

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	hash, errHash := HashPassword("hunter22")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id PHC encoding, got %q", hash)
	}
	if !VerifyPassword(hash, "hunter22") {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatalf("wrong password must not verify")
	}
}

func TestHashIsSalted(t *testing.T) {
	first, errFirst := HashPassword("hunter22")
	if errFirst != nil {
		t.Fatalf("hash password: %v", errFirst)
	}
	second, errSecond := HashPassword("hunter22")
	if errSecond != nil {
		t.Fatalf("hash password: %v", errSecond)
	}
	if first == second {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	for _, encoded := range []string{"", "plaintext", "$argon2id$v=19$broken", "$bcrypt$v=19$m=1,t=1,p=1$a$b"} {
		if VerifyPassword(encoded, "hunter22") {
			t.Fatalf("malformed hash %q must not verify", encoded)
		}
	}
}

func TestGenerateRandomString(t *testing.T) {
	token, errGenerate := GenerateRandomString(16)
	if errGenerate != nil {
		t.Fatalf("generate random string: %v", errGenerate)
	}
	if len(token) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(token))
	}
	other, _ := GenerateRandomString(16)
	if token == other {
		t.Fatalf("expected distinct tokens")
	}
}

func TestSellerTokenRoundtrip(t *testing.T) {
	token, errIssue := IssueSellerToken("test-secret", "owner-1", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}

	claims, errParse := ParseSellerToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.OwnerID != "owner-1" {
		t.Fatalf("expected owner-1, got %q", claims.OwnerID)
	}

	if _, errParse := ParseSellerToken("other-secret", token); errParse == nil {
		t.Fatalf("token must not verify under a different secret")
	}
}

func TestSellerTokenExpiry(t *testing.T) {
	token, errIssue := IssueSellerToken("test-secret", "owner-1", -time.Minute)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	if _, errParse := ParseSellerToken("test-secret", token); errParse == nil {
		t.Fatalf("expired token must not verify")
	}
}

func TestTOTPRoundtrip(t *testing.T) {
	secret, url, errGenerate := GenerateTOTPSecret("KeyForge", "acme")
	if errGenerate != nil {
		t.Fatalf("generate totp secret: %v", errGenerate)
	}
	if !strings.HasPrefix(url, "otpauth://") {
		t.Fatalf("expected otpauth url, got %q", url)
	}

	code, errCode := totp.GenerateCode(secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if !ValidateTOTP(secret, code) {
		t.Fatalf("expected current code to validate")
	}
	if ValidateTOTP(secret, "000000") && code != "000000" {
		t.Fatalf("static code must not validate")
	}
}
