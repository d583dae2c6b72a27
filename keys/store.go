package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a simple local-first key directory for layout owners and
// functionaries. One subdirectory per key name holding the private key file
// (0600) and its public half (0644). No external dependencies, no daemon.
type Store struct {
	Directory string
}

// Entry describes one stored key.
type Entry struct {
	Name    string
	KeyType string
	KeyID   string
}

// DefaultDirectory returns ~/.xdao/latch/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "latch", "keys"), nil
}

// OpenStore opens (or designates) a key store rooted at directory; empty
// means the default directory.
func OpenStore(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

// CheckName validates a key name: [A-Za-z0-9_-]+ only, so names map safely
// to directory entries.
func CheckName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func (s *Store) privatePath(name string) string {
	return filepath.Join(s.Directory, name, "key")
}

// Save writes a generated key pair under name. Existing keys are never
// overwritten unless force is set.
func (s *Store) Save(name string, k *Key, force bool) (privPath string, err error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(s.Directory, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	priv, _, err := WriteKeyPair(s.privatePath(name), k, force)
	return priv, err
}

// Load returns the private key stored under name.
func (s *Store) Load(name string) (*Key, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return LoadPrivate(s.privatePath(name))
}

// LoadPublic returns the public half stored under name.
func (s *Store) LoadPublic(name string) (*Key, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return LoadPublic(s.privatePath(name) + ".pub")
}

// List returns stored keys sorted by name. A store directory that does not
// exist yet lists as empty.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, de := range dirents {
		if de.IsDir() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	var out []Entry
	for _, name := range names {
		e := Entry{Name: name}
		if pub, perr := s.LoadPublic(name); perr == nil {
			e.KeyType = pub.KeyType
			e.KeyID = pub.KeyID
		}
		out = append(out, e)
	}
	return out, nil
}

// ShortKeyID returns the keyid prefix used in link file names.
func ShortKeyID(keyid string) string {
	if len(keyid) <= 8 {
		return strings.ToLower(keyid)
	}
	return strings.ToLower(keyid[:8])
}
