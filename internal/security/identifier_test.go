package security

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestIdentifierGenerator_LengthAndAlphabet(t *testing.T) {
	g := NewIdentifierGenerator()

	id, err := g.ClientID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != ClientIDLength {
		t.Errorf("len(ClientID) = %d, want %d", len(id), ClientIDLength)
	}

	secret, err := g.ClientSecret()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secret) != ClientSecretLength {
		t.Errorf("len(ClientSecret) = %d, want %d", len(secret), ClientSecretLength)
	}

	for _, s := range []string{id, secret} {
		for _, r := range s {
			if !strings.ContainsRune(identifierAlphabet, r) {
				t.Errorf("許可されていない文字 %q が含まれています: %s", r, s)
			}
		}
	}
}

func TestIdentifierGenerator_Unique(t *testing.T) {
	g := NewIdentifierGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := g.ClientID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("識別子が重複しました: %s", id)
		}
		seen[id] = true
	}
}

func TestIdentifierGenerator_Deterministic(t *testing.T) {
	// 0..35 はそのまま、252以上は読み捨てられる
	src := []byte{0, 10, 35, 255, 252, 36, 1, 2}
	g := NewIdentifierGeneratorWithReader(bytes.NewReader(src))

	got, err := g.Generate(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0az0" {
		t.Errorf("Generate(4) = %q, want %q", got, "0az0")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestIdentifierGenerator_ReaderError(t *testing.T) {
	g := NewIdentifierGeneratorWithReader(failingReader{})
	if _, err := g.Generate(8); err == nil {
		t.Error("乱数源のエラーが伝播するべき")
	}
}
