package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDigestDefaultsToSHA256(t *testing.T) {
	data := []byte("hello artifact")
	ds, err := Digest(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	if ds[SHA256] != hex.EncodeToString(sum[:]) {
		t.Fatalf("sha256 = %s", ds[SHA256])
	}
	if len(ds) != 1 {
		t.Fatalf("digest set = %v, want sha256 only", ds)
	}
}

func TestDigestMultipleAlgorithms(t *testing.T) {
	ds, err := Digest([]byte("x"), []string{SHA256, SHA512, SHA3256})
	if err != nil {
		t.Fatal(err)
	}
	for _, alg := range []string{SHA256, SHA512, SHA3256} {
		if ds[alg] == "" {
			t.Fatalf("missing %s digest", alg)
		}
	}
	if _, err := Digest([]byte("x"), []string{"md5"}); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestMatch(t *testing.T) {
	a := DigestSet{SHA256: "aa", SHA512: "bb"}

	if err := Match(a, DigestSet{SHA256: "AA"}); err != nil {
		t.Fatalf("case-insensitive agreement: %v", err)
	}
	if err := Match(a, DigestSet{SHA256: "cc"}); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err = %v, want ErrDigestMismatch", err)
	}
	if err := Match(a, DigestSet{SHA3256: "dd"}); !errors.Is(err, ErrNoCommonAlgorithm) {
		t.Fatalf("err = %v, want ErrNoCommonAlgorithm", err)
	}
}

func TestCanonicalPrefersSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("y"))
	hexVal := hex.EncodeToString(sum[:])
	d, err := Canonical(DigestSet{SHA256: hexVal, SHA3256: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "sha256:"+hexVal {
		t.Fatalf("canonical = %s", d)
	}
	if _, err := Canonical(DigestSet{SHA3256: "aa"}); err == nil {
		t.Fatal("expected error when no canonical algorithm is present")
	}
}

func TestRecordTree(t *testing.T) {
	tmp := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(tmp, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("main.go", "package main\n")
	write("pkg/util.go", "package pkg\n")
	write("build.log", "noise\n")

	if runtime.GOOS != "windows" {
		if err := os.Symlink(filepath.Join(tmp, "main.go"), filepath.Join(tmp, "alias.go")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Record(tmp, RecordOptions{Exclude: []string{"*.log"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["main.go"]; !ok {
		t.Fatalf("missing main.go in %v", Names(got))
	}
	if _, ok := got["pkg/util.go"]; !ok {
		t.Fatalf("subdirectory path not slash-normalized: %v", Names(got))
	}
	if _, ok := got["build.log"]; ok {
		t.Fatal("excluded file recorded")
	}
	if _, ok := got["alias.go"]; ok {
		t.Fatal("symlink recorded")
	}
}

func TestRecordSingleFile(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "app")
	if err := os.WriteFile(p, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Record(p, RecordOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("recorded %v", Names(got))
	}
	if _, ok := got["app"]; !ok {
		t.Fatalf("single file keyed by base name, got %v", Names(got))
	}
}

func TestNamesSorted(t *testing.T) {
	m := map[string]DigestSet{"b": nil, "a": nil, "c": nil}
	got := Names(m)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("Names = %v", got)
	}
}
