package link

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/latch/metablock"
)

// Entry is one evidence file found in a link directory. Exactly one of
// Envelope or DSSE is set: signature-checked envelopes carry the decoded
// body in Link immediately, while DSSE envelopes keep their raw bytes so
// the signature can be verified against the authorized key later. The
// body is decoded either way so the entry can be indexed by step name.
type Entry struct {
	Path     string
	Envelope *metablock.Metablock
	DSSE     []byte
	Link     *Link
}

// Set indexes evidence by step name, each slice sorted by filename.
type Set map[string][]*Entry

// LoadDir reads every *.link file under dir. Files that do not parse as
// either envelope are skipped with a warning; they are someone else's
// problem until a step actually needs them. A missing or empty directory
// yields an empty set, not an error.
func LoadDir(dir string, warn func(format string, args ...any)) (Set, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("read link directory %s: %w", dir, err)
	}

	set := Set{}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".link") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		e, err := loadEntry(path)
		if err != nil {
			warn("skipping %s: %v", path, err)
			continue
		}
		set[e.Link.Name] = append(set[e.Link.Name], e)
	}
	for _, es := range set {
		sort.Slice(es, func(i, j int) bool { return es[i].Path < es[j].Path })
	}
	return set, nil
}

func loadEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if metablock.IsDSSE(data) {
		l, err := decodeDSSEBody(data)
		if err != nil {
			return nil, err
		}
		return &Entry{Path: path, DSSE: data, Link: l}, nil
	}
	m, err := metablock.Parse(data)
	if err != nil {
		return nil, err
	}
	l, err := decodeBody(m)
	if err != nil {
		return nil, err
	}
	return &Entry{Path: path, Envelope: m, Link: l}, nil
}

func decodeBody(m *metablock.Metablock) (*Link, error) {
	if t := m.SignedType(); t != TypeLink {
		return nil, fmt.Errorf("unexpected _type %q (want %q)", t, TypeLink)
	}
	var l Link
	if err := m.DecodeSigned(&l); err != nil {
		return nil, err
	}
	if l.Name == "" {
		return nil, fmt.Errorf("link has no step name")
	}
	return &l, nil
}

// decodeDSSEBody reads the step name and artifact sets out of a DSSE
// envelope without verifying it. Trust decisions stay with the caller.
func decodeDSSEBody(data []byte) (*Link, error) {
	var env struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	body, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not base64: %w", err)
	}
	var l Link
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("payload is not a link: %w", err)
	}
	if l.Type != TypeLink {
		return nil, fmt.Errorf("unexpected _type %q (want %q)", l.Type, TypeLink)
	}
	if l.Name == "" {
		return nil, fmt.Errorf("link has no step name")
	}
	return &l, nil
}
