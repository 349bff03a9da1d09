package uniuri

import (
	"bytes"
	"testing"
)

func TestNewLen(t *testing.T) {
	for _, length := range []int{0, 1, 16, 48, 64} {
		if got := len(NewLen(length)); got != length {
			t.Errorf("NewLen(%d) length = %d", length, got)
		}
	}
}

func TestNewLenCharsUsesOnlyGivenCharset(t *testing.T) {
	chars := []byte("ab")

	s := NewLenChars(256, chars)
	for i := 0; i < len(s); i++ {
		if !bytes.ContainsRune(chars, rune(s[i])) {
			t.Fatalf("NewLenChars produced %q outside charset", s[i])
		}
	}
}

func TestNewLenIsRandom(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		s := NewLen(32)
		if seen[s] {
			t.Fatal("NewLen returned a duplicate value")
		}

		seen[s] = true
	}
}

func TestNewLenCharsRejectsBadCharset(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewLenChars should panic on a single-char charset")
		}
	}()

	NewLenChars(8, []byte("a"))
}
