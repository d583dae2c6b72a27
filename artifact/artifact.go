// Package artifact records and compares the content digests of pipeline
// artifacts (the materials a step consumes and the products it leaves
// behind).
package artifact

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/sha3"
)

// DigestSet maps a hash algorithm name to a lowercase hex digest.
// A single artifact usually carries one entry (sha256), but sets from
// different toolchains may overlap on more.
type DigestSet map[string]string

// Supported digest algorithms.
const (
	SHA256  = "sha256"
	SHA512  = "sha512"
	SHA3256 = "sha3-256"
)

// DefaultAlgorithms is what Record uses when none are requested.
var DefaultAlgorithms = []string{SHA256}

var (
	// ErrNoCommonAlgorithm means two digest sets share no algorithm, so
	// equality cannot be decided either way.
	ErrNoCommonAlgorithm = errors.New("digest sets share no common algorithm")
	// ErrDigestMismatch means two digest sets disagree on a shared
	// algorithm.
	ErrDigestMismatch = errors.New("digest mismatch")
)

func hasherFor(alg string) (hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA3256:
		return sha3.New256(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}

// Digest hashes data with each requested algorithm.
func Digest(data []byte, algorithms []string) (DigestSet, error) {
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms
	}
	out := make(DigestSet, len(algorithms))
	for _, alg := range algorithms {
		h, err := hasherFor(alg)
		if err != nil {
			return nil, err
		}
		_, _ = h.Write(data)
		out[alg] = fmt.Sprintf("%x", h.Sum(nil))
	}
	return out, nil
}

// DigestFile hashes the file at p with each requested algorithm.
func DigestFile(p string, algorithms []string) (DigestSet, error) {
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hashers := make([]hash.Hash, 0, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, alg := range algorithms {
		h, herr := hasherFor(alg)
		if herr != nil {
			return nil, herr
		}
		hashers = append(hashers, h)
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), f); err != nil {
		return nil, err
	}
	out := make(DigestSet, len(algorithms))
	for i, alg := range algorithms {
		out[alg] = fmt.Sprintf("%x", hashers[i].Sum(nil))
	}
	return out, nil
}

// Match compares two digest sets over the algorithms they share. It returns
// nil when every shared algorithm agrees, ErrDigestMismatch (with the
// offending algorithm) on disagreement, and ErrNoCommonAlgorithm when the
// sets cannot be compared at all.
func Match(a, b DigestSet) error {
	shared := false
	for alg, av := range a {
		bv, ok := b[alg]
		if !ok {
			continue
		}
		shared = true
		if !strings.EqualFold(av, bv) {
			return fmt.Errorf("%w (%s: %s != %s)", ErrDigestMismatch, alg, av, bv)
		}
	}
	if !shared {
		return ErrNoCommonAlgorithm
	}
	return nil
}

// Canonical projects a digest set onto a single opencontainers digest
// string (alg:hex), preferring sha256 then sha512. Used where a single
// content address is exchanged with registry tooling.
func Canonical(ds DigestSet) (digest.Digest, error) {
	for _, alg := range []string{SHA256, SHA512} {
		hexVal, ok := ds[alg]
		if !ok {
			continue
		}
		d := digest.NewDigestFromEncoded(digest.Algorithm(alg), strings.ToLower(hexVal))
		if err := d.Validate(); err != nil {
			return "", fmt.Errorf("invalid %s digest: %w", alg, err)
		}
		return d, nil
	}
	return "", errors.New("digest set has no canonical algorithm")
}

// RecordOptions controls directory recording.
type RecordOptions struct {
	// Algorithms to hash with; DefaultAlgorithms when empty.
	Algorithms []string
	// Exclude holds glob patterns matched against slash-normalized
	// relative paths and their base names.
	Exclude []string
}

// Record walks root and hashes every regular file into a path→DigestSet
// map. Paths are slash-normalized and relative to root; symlinks are
// skipped. The map is the materials or products side of a link.
func Record(root string, opts RecordOptions) (map[string]DigestSet, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		ds, err := DigestFile(root, opts.Algorithms)
		if err != nil {
			return nil, err
		}
		return map[string]DigestSet{path.Base(filepath.ToSlash(root)): ds}, nil
	}

	out := make(map[string]DigestSet)
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, opts.Exclude) {
			return nil
		}
		ds, derr := DigestFile(p, opts.Algorithms)
		if derr != nil {
			return derr
		}
		out[rel] = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordFiles hashes an explicit file list, keyed by slash-normalized path
// as given.
func RecordFiles(paths []string, algorithms []string) (map[string]DigestSet, error) {
	out := make(map[string]DigestSet, len(paths))
	for _, p := range paths {
		ds, err := DigestFile(p, algorithms)
		if err != nil {
			return nil, err
		}
		out[filepath.ToSlash(p)] = ds
	}
	return out, nil
}

func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// Names returns the sorted artifact names of a recorded map. Deterministic
// ordering keeps reports and rule evaluation stable.
func Names(m map[string]DigestSet) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
