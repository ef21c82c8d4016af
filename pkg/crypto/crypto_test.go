package crypto

import (
	"strings"
	"testing"
)

// cheap parameters keep the tests fast
var testParams = Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashAndVerify(t *testing.T) {
	encoded, err := HashPasswordWithParams("pw1", testParams)
	if err != nil {
		t.Fatalf("HashPasswordWithParams: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if !VerifyPassword(encoded, "pw1") {
		t.Errorf("VerifyPassword: correct secret rejected")
	}
	if VerifyPassword(encoded, "pw2") {
		t.Errorf("VerifyPassword: wrong secret accepted")
	}
}

func TestHashIsSalted(t *testing.T) {
	a, err := HashPasswordWithParams("same", testParams)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := HashPasswordWithParams("same", testParams)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a == b {
		t.Errorf("two hashes of the same secret are identical")
	}
}

func TestVerifyMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"plain text":    "pw1",
		"wrong algo":    "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"bad params":    "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"bad base64":    "$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5",
		"wrong version": "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5",
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			if VerifyPassword(encoded, "pw1") {
				t.Errorf("VerifyPassword(%q) = true", encoded)
			}
		})
	}
}
