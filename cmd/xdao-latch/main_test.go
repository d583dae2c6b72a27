package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xdao.co/latch/layout"
	"xdao.co/latch/link"
	"xdao.co/latch/metablock"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr = %q", errOut)
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	code, _, errOut := runCLI(t)
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut, "Usage:") {
		t.Fatalf("stderr = %q", errOut)
	}
}

// TestPipelineEndToEnd drives a single-step supply chain through the CLI:
// generate keys, author and sign a layout, record a build, verify, and
// write a signed summary.
func TestPipelineEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	ownerKey := filepath.Join(tmp, "owner")
	funcKey := filepath.Join(tmp, "functionary")

	for _, name := range []string{ownerKey, funcKey} {
		code, out, errOut := runCLI(t, "keygen", "-k", name, "--scheme", "ed25519")
		if code != 0 {
			t.Fatalf("keygen %s: exit %d, stderr %q", name, code, errOut)
		}
		if !strings.Contains(out, name) {
			t.Fatalf("keygen output %q does not name the key file", out)
		}
	}

	layoutPath := filepath.Join(tmp, "root.layout")
	l := &layout.Layout{
		Type:    layout.TypeLayout,
		Expires: time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		Steps: []*layout.Step{
			{
				Type: layout.TypeStep,
				Name: "package",
				ExpectedMaterials: [][]string{
					{"ALLOW", "*"},
				},
				ExpectedProducts: [][]string{
					{"CREATE", "out.txt"},
					{"ALLOW", "*"},
				},
			},
		},
	}
	m, err := metablock.New(l)
	if err != nil {
		t.Fatal(err)
	}
	if err := metablock.Dump(m, layoutPath); err != nil {
		t.Fatal(err)
	}

	code, _, errOut := runCLI(t, "layout", "update-keys", "-l", layoutPath, "-k", funcKey+".pub")
	if code != 0 {
		t.Fatalf("layout update-keys: exit %d, stderr %q", code, errOut)
	}
	code, _, errOut = runCLI(t, "layout", "sign", "-l", layoutPath, "-k", ownerKey)
	if code != 0 {
		t.Fatalf("layout sign: exit %d, stderr %q", code, errOut)
	}

	products := filepath.Join(tmp, "products")
	if err := os.MkdirAll(products, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(products, "out.txt"), []byte("built\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	linkDir := filepath.Join(tmp, "links")
	code, out, errOut := runCLI(t, "record",
		"--step", "package",
		"--key", funcKey,
		"--products", products,
		"-o", linkDir,
	)
	if code != 0 {
		t.Fatalf("record: exit %d, stderr %q", code, errOut)
	}
	linkPath := strings.TrimSpace(out)
	if _, err := os.Stat(linkPath); err != nil {
		t.Fatalf("record output %q is not a file: %v", linkPath, err)
	}

	summaryPath := filepath.Join(tmp, "root.summary")
	code, out, errOut = runCLI(t, "verify",
		"--layout", layoutPath,
		"--verification-keys", ownerKey+".pub",
		"--link-dir", linkDir,
		"--summary-key", ownerKey,
		"--summary-out", summaryPath,
	)
	if code != 0 {
		t.Fatalf("verify: exit %d, stderr %q", code, errOut)
	}
	if !strings.HasPrefix(out, "PASSED ") {
		t.Fatalf("verify output = %q", out)
	}
	if _, err := os.Stat(summaryPath); err != nil {
		t.Fatalf("summary not written: %v", err)
	}

	// The functionary key is not a layout key; verification must refuse it.
	code, _, errOut = runCLI(t, "verify",
		"--layout", layoutPath,
		"--verification-keys", funcKey+".pub",
		"--link-dir", linkDir,
	)
	if code != 1 {
		t.Fatalf("verify with wrong key: exit %d, want 1", code)
	}
	if !strings.Contains(errOut, "LATCH-VER-102") {
		t.Fatalf("stderr = %q, want the untrusted-signature diagnostic", errOut)
	}
}

func TestRecordWithExtraAlgorithms(t *testing.T) {
	tmp := t.TempDir()
	keyPath := filepath.Join(tmp, "functionary")
	code, _, errOut := runCLI(t, "keygen", "-k", keyPath, "--scheme", "ed25519")
	if code != 0 {
		t.Fatalf("keygen: exit %d, stderr %q", code, errOut)
	}

	products := filepath.Join(tmp, "products")
	if err := os.MkdirAll(products, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(products, "out.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	linkDir := filepath.Join(tmp, "links")
	code, _, errOut = runCLI(t, "record",
		"--step", "package",
		"--key", keyPath,
		"--products", products,
		"--algorithms", "sha256, sha512,sha3-256",
		"-o", linkDir,
	)
	if code != 0 {
		t.Fatalf("record: exit %d, stderr %q", code, errOut)
	}

	set, err := link.LoadDir(linkDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	es := set["package"]
	if len(es) != 1 {
		t.Fatalf("loaded %d links", len(es))
	}
	ds := es[0].Link.Products["out.bin"]
	for _, alg := range []string{"sha256", "sha512", "sha3-256"} {
		if ds[alg] == "" {
			t.Fatalf("product digests missing %s: %v", alg, ds)
		}
	}

	code, _, errOut = runCLI(t, "record",
		"--step", "package",
		"--key", keyPath,
		"--products", products,
		"--algorithms", "md5",
		"-o", linkDir,
	)
	if code != 1 || !strings.Contains(errOut, "md5") {
		t.Fatalf("unsupported algorithm: exit %d, stderr %q", code, errOut)
	}
}

func TestStoreAndBundleRoundTripViaCLI(t *testing.T) {
	tmp := t.TempDir()
	storeDir := filepath.Join(tmp, "store")
	blob := filepath.Join(tmp, "evidence.json")
	if err := os.WriteFile(blob, []byte(`{"_type":"link","name":"package"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCLI(t, "store", "put", "--backend", "localfs", "--localfs-dir", storeDir, blob)
	if code != 0 {
		t.Fatalf("store put: exit %d, stderr %q", code, errOut)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("store put printed no CID")
	}

	gotFile := filepath.Join(tmp, "fetched.json")
	code, _, errOut = runCLI(t, "store", "get", "--backend", "localfs", "--localfs-dir", storeDir, "--cid", id, "--out", gotFile)
	if code != 0 {
		t.Fatalf("store get: exit %d, stderr %q", code, errOut)
	}
	got, err := os.ReadFile(gotFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"_type":"link","name":"package"}` {
		t.Fatalf("round trip corrupted bytes: %q", got)
	}

	bundlePath := filepath.Join(tmp, "evidence.tar")
	code, _, errOut = runCLI(t, "bundle", "export", "--backend", "localfs", "--localfs-dir", storeDir, "-o", bundlePath, "--cid", id)
	if code != 0 {
		t.Fatalf("bundle export: exit %d, stderr %q", code, errOut)
	}

	otherStore := filepath.Join(tmp, "store2")
	code, _, errOut = runCLI(t, "bundle", "import", "--backend", "localfs", "--localfs-dir", otherStore, bundlePath)
	if code != 0 {
		t.Fatalf("bundle import: exit %d, stderr %q", code, errOut)
	}
	code, out, errOut = runCLI(t, "store", "get", "--backend", "localfs", "--localfs-dir", otherStore, "--cid", id)
	if code != 0 {
		t.Fatalf("store get after import: exit %d, stderr %q", code, errOut)
	}
	if out != `{"_type":"link","name":"package"}` {
		t.Fatalf("imported bytes = %q", out)
	}
}

func TestStoreListBackends(t *testing.T) {
	code, out, _ := runCLI(t, "store", "put", "--list-backends")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "localfs") || !strings.Contains(out, "grpc") {
		t.Fatalf("backend listing = %q", out)
	}
}
