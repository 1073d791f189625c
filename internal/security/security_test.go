package security

import (
	"strings"
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, errHash := HashPassword("correct horse battery staple")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "correct horse battery staple" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Fatalf("expected matching password to verify")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatalf("expected mismatched password to fail")
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	token, errSign := SignUserToken("secret", 42, time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	claims, errParse := ParseUserToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", claims.UserID)
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, errSign := SignAdminToken("secret", 7, time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	claims, errParse := ParseAdminToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.AdminID != 7 {
		t.Fatalf("expected admin id 7, got %d", claims.AdminID)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	userToken, _ := SignUserToken("secret", 42, time.Hour)
	adminToken, _ := SignAdminToken("secret", 7, time.Hour)

	if _, errParse := ParseAdminToken("secret", userToken); errParse == nil {
		t.Fatalf("user token must not parse as admin token")
	}
	if _, errParse := ParseUserToken("secret", adminToken); errParse == nil {
		t.Fatalf("admin token must not parse as user token")
	}
}

func TestParseRejectsWrongSecretAndExpiry(t *testing.T) {
	token, _ := SignUserToken("secret", 42, time.Hour)
	if _, errParse := ParseUserToken("other-secret", token); errParse == nil {
		t.Fatalf("expected wrong secret rejected")
	}

	expired, _ := SignUserToken("secret", 42, -time.Minute)
	if _, errParse := ParseUserToken("secret", expired); errParse == nil {
		t.Fatalf("expected expired token rejected")
	}
}

func TestSignRejectsEmptySecret(t *testing.T) {
	if _, errSign := SignUserToken("  ", 42, time.Hour); errSign == nil {
		t.Fatalf("expected empty secret rejected")
	}
}

func TestGenerateRandomString(t *testing.T) {
	first, errGen := GenerateRandomString(32)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	second, errGen := GenerateRandomString(32)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if first == second {
		t.Fatalf("expected distinct values")
	}
	if strings.ContainsAny(first, "+/=") {
		t.Fatalf("expected url-safe encoding, got %q", first)
	}
}

func TestValidateTOTPEmptyInputs(t *testing.T) {
	secret, url, errGen := GenerateTOTPSecret("CloudEZ", "root")
	if errGen != nil {
		t.Fatalf("generate totp: %v", errGen)
	}
	if secret == "" || !strings.HasPrefix(url, "otpauth://") {
		t.Fatalf("unexpected enrollment secret=%q url=%q", secret, url)
	}
	if ValidateTOTP("", "123456") {
		t.Fatalf("empty secret must not validate")
	}
	if ValidateTOTP(secret, "") {
		t.Fatalf("empty code must not validate")
	}
	if ValidateTOTP(secret, "000000") {
		t.Fatalf("arbitrary code should not validate")
	}
}
