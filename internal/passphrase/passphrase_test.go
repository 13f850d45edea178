package passphrase

import "testing"

var testParams = Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16}

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := Hash("correct-horse", testParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify(hash, "correct-horse") {
		t.Fatalf("expected verify to succeed")
	}
	if Verify(hash, "wrong") {
		t.Fatalf("expected verify to fail for wrong passphrase")
	}
}

func TestVerifyMalformedVerifier(t *testing.T) {
	if Verify("not-a-real-verifier", "anything") {
		t.Fatalf("expected malformed verifier to fail closed")
	}
}

func TestHashIsSalted(t *testing.T) {
	h1, _ := Hash("same", testParams)
	h2, _ := Hash("same", testParams)
	if h1 == h2 {
		t.Fatalf("expected distinct salts to produce distinct verifiers")
	}
}
