package storeconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"xdao.co/latch/storage/storeconfig"
	"xdao.co/latch/storage/storeregistry"

	_ "xdao.co/latch/storage/localfs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileValidates(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"single localfs", `{"backends":[{"name":"localfs","config":{"localfs-dir":"/tmp/x"}}]}`, true},
		{"write policy all", `{"write_policy":"all","backends":[{"name":"localfs"}]}`, true},
		{"no backends", `{"backends":[]}`, false},
		{"unnamed backend", `{"backends":[{"config":{}}]}`, false},
		{"duplicate ids", `{"backends":[{"name":"localfs"},{"name":"localfs"}]}`, false},
		{"bad policy", `{"write_policy":"quorum","backends":[{"name":"localfs"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := storeconfig.LoadFile(writeConfig(t, tc.body))
			if tc.ok && err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("LoadFile accepted invalid config")
			}
		})
	}
}

func TestOpenLocalFSFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := storeconfig.Config{
		Backends: []storeconfig.BackendConfig{
			{Name: "localfs", Config: map[string]string{"localfs-dir": dir}},
		},
	}

	s, closeFn, err := cfg.Open(storeregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, err := s.Put([]byte("configured"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(id) {
		t.Fatal("Has: expected true")
	}
}

func TestOpenUnknownPreferredBackend(t *testing.T) {
	cfg := storeconfig.Config{
		Backends: []storeconfig.BackendConfig{{Name: "localfs"}},
	}
	if _, _, err := cfg.Open(storeregistry.UsageCLI, "grpc"); err == nil {
		t.Fatal("Open accepted a preferred backend missing from the config")
	}
}
