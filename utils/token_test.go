package utils

import "testing"

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	t.Setenv("TOKEN_HOUR_LIFESPAN", "1")

	token, err := JwtGenerate(JwtCustomClaim{UserID: "u-1", Username: "amy", TenantID: "t-1"})
	if err != nil {
		t.Fatalf("JwtGenerate error: %v", err)
	}
	claim, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate error: %v", err)
	}
	if claim.UserID != "u-1" || claim.Username != "amy" || claim.TenantID != "t-1" {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	t.Setenv("API_SECRET", "other-secret")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("expected signature failure with a different secret")
	}
}

func TestIsPasswordHash(t *testing.T) {
	hashed, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !IsPasswordHash(string(hashed)) {
		t.Fatalf("expected bcrypt output to be recognised")
	}
	if IsPasswordHash("s3cret") {
		t.Fatalf("plain text should not be recognised as a hash")
	}
	if err := ComparePassword(string(hashed), "s3cret"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
}
