package slug

import "testing"

func TestValidateLength(t *testing.T) {
	if err := Validate("abc", nil); err != errInvalidLength {
		t.Fatalf("expected errInvalidLength for short slug, got %v", err)
	}
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if err := Validate(string(long), nil); err != errInvalidLength {
		t.Fatalf("expected errInvalidLength for long slug, got %v", err)
	}
}

func TestValidateCharset(t *testing.T) {
	if err := Validate("has a space", nil); err != errInvalidChars {
		t.Fatalf("expected errInvalidChars, got %v", err)
	}
	if err := Validate("has/slash", nil); err != errInvalidChars {
		t.Fatalf("expected errInvalidChars, got %v", err)
	}
}

func TestValidateReserved(t *testing.T) {
	reserved := map[string]struct{}{"preview": {}}
	if err := Validate("preview", reserved); err != errReserved {
		t.Fatalf("expected errReserved, got %v", err)
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate("my-drop_1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateLengthAndAlphabet(t *testing.T) {
	alphabet := "abc"
	out, err := Generate(alphabet, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 12 {
		t.Fatalf("expected length 12, got %d", len(out))
	}
	for _, r := range out {
		if r != 'a' && r != 'b' && r != 'c' {
			t.Fatalf("unexpected rune %q outside alphabet", r)
		}
	}
}

func TestGenerateRejectsEmptyAlphabet(t *testing.T) {
	if _, err := Generate("", 8); err == nil {
		t.Fatalf("expected error for empty alphabet")
	}
}

func TestGenerateDiffersAcrossCalls(t *testing.T) {
	a, _ := Generate("abcdefghijklmnopqrstuvwxyz0123456789", 16)
	b, _ := Generate("abcdefghijklmnopqrstuvwxyz0123456789", 16)
	if a == b {
		t.Fatalf("expected two generated slugs to differ with overwhelming probability")
	}
}
