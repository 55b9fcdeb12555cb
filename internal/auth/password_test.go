package auth

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// bcrypt.MinCost keeps each hash in the low milliseconds.
func newTestPasswordService() *PasswordService {
	return newPasswordServiceWithCost(4)
}

// signUp mirrors the email sign-up path: strength check first, then hash.
func signUp(ps *PasswordService, password string) (string, error) {
	if err := ps.CheckStrength(password); err != nil {
		return "", err
	}
	return ps.Hash(password)
}

func TestSignUp_PasswordRules(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
		wantWeak bool
		wantErr  bool
	}{
		{"one short of the minimum", strings.Repeat("b", MinPasswordLength-1), true, true},
		{"exactly the minimum", strings.Repeat("b", MinPasswordLength), false, false},
		{"typical account password", "brine123", false, false},
		{"six cyrillic runes", "рассол", false, false},
		{"passphrase past bcrypt's limit", "grandma's dill pickles live in the blue tin above the stove, next to the jars", false, true},
		{"short in runes, long in bytes", "соленые огурцы бабушки в синей банке над плитой", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := signUp(ps, tc.password)
			if tc.wantWeak {
				if err != ErrWeakPassword {
					t.Fatalf("signUp() error = %v, want ErrWeakPassword", err)
				}
				return
			}
			if tc.wantErr {
				if err == nil {
					t.Fatalf("signUp() accepted a %d-byte password", len(tc.password))
				}
				if hash != "" {
					t.Errorf("signUp() returned hash %q alongside an error", hash)
				}
				return
			}
			if err != nil {
				t.Fatalf("signUp() error = %v", err)
			}
			if err := ps.Verify(hash, tc.password); err != nil {
				t.Errorf("Verify() after sign-up: %v", err)
			}
		})
	}
}

func TestCheckStrength_CountsRunesNotBytes(t *testing.T) {
	ps := newTestPasswordService()

	// five runes but ten bytes
	pw := "огурц"
	if utf8.RuneCountInString(pw) >= MinPasswordLength || len(pw) < MinPasswordLength {
		t.Fatalf("fixture %q no longer straddles the minimum", pw)
	}
	if err := ps.CheckStrength(pw); err != ErrWeakPassword {
		t.Errorf("CheckStrength(%q) = %v, want ErrWeakPassword", pw, err)
	}
}

func TestHash_SaltsEachAccount(t *testing.T) {
	ps := newTestPasswordService()

	// two accounts that picked the same password
	alice, err := ps.Hash("brine123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	bob, err := ps.Hash("brine123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if alice == bob {
		t.Error("identical hashes for two accounts with the same password")
	}
	if !strings.HasPrefix(alice, "$2a$04$") {
		t.Errorf("hash %q does not carry the configured cost", alice)
	}
	if err := ps.Verify(bob, "brine123"); err != nil {
		t.Errorf("Verify() across accounts: %v", err)
	}
}

func TestVerify_LoginAttempts(t *testing.T) {
	ps := newTestPasswordService()

	stored, err := ps.Hash("dill&garlic")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	cases := []struct {
		name    string
		attempt string
		wantErr bool
	}{
		{"correct", "dill&garlic", false},
		{"wrong case", "Dill&garlic", true},
		{"trailing space", "dill&garlic ", true},
		{"empty", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ps.Verify(stored, tc.attempt)
			if (err != nil) != tc.wantErr {
				t.Errorf("Verify(%q) error = %v, wantErr %v", tc.attempt, err, tc.wantErr)
			}
		})
	}
}

func TestVerify_CorruptStoredHash(t *testing.T) {
	ps := newTestPasswordService()

	err := ps.Verify("not-a-bcrypt-hash", "brine123")
	if err == nil {
		t.Fatal("Verify() accepted a corrupt stored hash")
	}
	if strings.Contains(err.Error(), "invalid password") {
		t.Errorf("corrupt hash reported as a wrong password: %v", err)
	}
}
