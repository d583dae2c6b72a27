package link

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/latch/artifact"
	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func base64of(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestFilenameFor(t *testing.T) {
	got := FilenameFor("build", "AABBCCDDEEFF00112233445566778899aabbccddeeff00112233445566778899")
	if got != "build.aabbccdd.link" {
		t.Fatalf("FilenameFor = %q", got)
	}
}

func TestRecordDigestsBothSides(t *testing.T) {
	materials := writeTree(t, map[string]string{"src/main.go": "package main\n"})
	products := writeTree(t, map[string]string{"out/app": "binary"})

	l, err := Record("build", RecordOptions{MaterialsDir: materials, ProductsDir: products})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if l.Type != TypeLink || l.Name != "build" {
		t.Fatalf("link header = %q/%q", l.Type, l.Name)
	}
	if _, ok := l.Materials["src/main.go"]; !ok {
		t.Fatalf("materials = %v, missing src/main.go", l.Materials)
	}
	if _, ok := l.Products["out/app"]; !ok {
		t.Fatalf("products = %v, missing out/app", l.Products)
	}
}

func TestRecordRunsCommand(t *testing.T) {
	work := writeTree(t, map[string]string{"in.txt": "hello"})

	l, err := Record("echo", RecordOptions{
		MaterialsDir: work,
		ProductsDir:  work,
		Command:      []string{"sh", "-c", "cp in.txt out.txt"},
		Dir:          work,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, ok := l.Materials["out.txt"]; ok {
		t.Fatal("out.txt recorded as material before the command ran")
	}
	if _, ok := l.Products["out.txt"]; !ok {
		t.Fatalf("products = %v, missing out.txt", l.Products)
	}
	if rv, ok := l.ByProducts["return-value"].(int); !ok || rv != 0 {
		t.Fatalf("return-value = %v", l.ByProducts["return-value"])
	}
}

func TestRecordCapturesFailingCommand(t *testing.T) {
	work := t.TempDir()
	l, err := Record("fail", RecordOptions{
		Command: []string{"sh", "-c", "echo boom >&2; exit 3"},
		Dir:     work,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rv := l.ByProducts["return-value"]; rv != 3 {
		t.Fatalf("return-value = %v, want 3", rv)
	}
	if !strings.Contains(l.ByProducts["stderr"].(string), "boom") {
		t.Fatalf("stderr byproduct = %q", l.ByProducts["stderr"])
	}
}

func TestSignAndWriteThenLoadDir(t *testing.T) {
	k, err := keys.GenerateEd25519(nil)
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	materials := writeTree(t, map[string]string{"a.txt": "a"})
	l, err := Record("checkout", RecordOptions{ProductsDir: materials})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	linkDir := t.TempDir()
	path, err := SignAndWrite(l, k, linkDir)
	if err != nil {
		t.Fatalf("SignAndWrite: %v", err)
	}
	if filepath.Base(path) != FilenameFor("checkout", k.KeyID) {
		t.Fatalf("wrote %s", path)
	}

	set, err := LoadDir(linkDir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	es := set["checkout"]
	if len(es) != 1 {
		t.Fatalf("set[checkout] has %d entries", len(es))
	}
	if es[0].Envelope == nil || es[0].DSSE != nil {
		t.Fatal("entry not loaded as a plain envelope")
	}
	if err := es[0].Envelope.VerifySignature(k); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if _, ok := es[0].Link.Products["a.txt"]; !ok {
		t.Fatalf("loaded products = %v", es[0].Link.Products)
	}
}

// A hand-built link without the type tag must still come back out of
// LoadDir: the signer fills the tag in rather than writing evidence the
// loader would skip.
func TestSignAndWriteTagsUntypedLinks(t *testing.T) {
	k, err := keys.GenerateEd25519(nil)
	if err != nil {
		t.Fatalf("GenerateEd25519: %v", err)
	}
	l := &Link{
		Name:      "build",
		Materials: map[string]artifact.DigestSet{},
		Products:  map[string]artifact.DigestSet{"app": {"sha256": "aa"}},
	}

	linkDir := t.TempDir()
	if _, err := SignAndWrite(l, k, linkDir); err != nil {
		t.Fatalf("SignAndWrite: %v", err)
	}
	if l.Type != "" {
		t.Fatalf("caller's link mutated: _type = %q", l.Type)
	}

	set, err := LoadDir(linkDir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	es := set["build"]
	if len(es) != 1 {
		t.Fatalf("set[build] has %d entries", len(es))
	}
	if es[0].Link.Type != TypeLink {
		t.Fatalf("loaded _type = %q", es[0].Link.Type)
	}

	foreign := &Link{Type: "layout", Name: "build"}
	if _, err := SignAndWrite(foreign, k, linkDir); err == nil {
		t.Fatal("accepted a non-link type tag")
	}
	if _, err := SignAndWrite(&Link{Type: TypeLink}, k, linkDir); err == nil {
		t.Fatal("accepted a link without a step name")
	}
}

func TestLoadDirSkipsGarbageWithWarning(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.link"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var warned []string
	set, err := LoadDir(dir, func(format string, args ...any) {
		warned = append(warned, format)
	})
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("set = %v, want empty", set)
	}
	if len(warned) != 1 {
		t.Fatalf("got %d warnings, want 1 (only the .link file)", len(warned))
	}
}

func TestLoadDirMissingDirectoryIsEmpty(t *testing.T) {
	set, err := LoadDir(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("set = %v", set)
	}
}

func TestLoadDirIndexesDSSEByStepName(t *testing.T) {
	dir := t.TempDir()
	// A DSSE envelope with an unverified (garbage) signature still gets
	// indexed; trust is established later against the layout registry.
	payload := `{"_type":"link","name":"build","command":[],"materials":{},"products":{},"byproducts":{},"environment":{}}`
	env := `{"payloadType":"` + metablock.PayloadTypeLink + `","payload":"` +
		base64of(payload) + `","signatures":[{"keyid":"k","sig":"AAAA"}]}`
	if err := os.WriteFile(filepath.Join(dir, "build.deadbeef.link"), []byte(env), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	set, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	es := set["build"]
	if len(es) != 1 {
		t.Fatalf("set[build] has %d entries", len(es))
	}
	if es[0].DSSE == nil || es[0].Envelope != nil {
		t.Fatal("entry not loaded as DSSE")
	}
}
