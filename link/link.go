// Package link produces and loads step evidence: the attestation a
// functionary signs after performing one pipeline step, recording the
// artifacts the step consumed and produced.
package link

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"xdao.co/latch/artifact"
	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
)

// TypeLink tags a link payload.
const TypeLink = "link"

// Link is the evidence body for one step execution.
type Link struct {
	Type        string                        `json:"_type"`
	Name        string                        `json:"name"`
	Command     []string                      `json:"command"`
	Materials   map[string]artifact.DigestSet `json:"materials"`
	Products    map[string]artifact.DigestSet `json:"products"`
	ByProducts  map[string]any                `json:"byproducts"`
	Environment map[string]any                `json:"environment"`
}

// FilenameFor is the on-disk naming convention for signed links. The keyid
// is shortened so a step signed by several functionaries yields several
// files side by side.
func FilenameFor(stepName, keyid string) string {
	return fmt.Sprintf("%s.%s.link", stepName, keys.ShortKeyID(keyid))
}

// RecordOptions controls Record.
type RecordOptions struct {
	// MaterialsDir and ProductsDir are the trees to digest before and
	// after the command. Either may be empty (nothing recorded for that
	// side).
	MaterialsDir string
	ProductsDir  string

	// Command, when set, is executed between recording materials and
	// products, in Dir (or the process working directory). Its stdout and
	// stderr are captured as byproducts along with the exit code.
	Command []string
	Dir     string

	Algorithms []string
	Exclude    []string
}

// Record performs one step: digest the material tree, optionally run the
// step command, digest the product tree, and return the unsigned link.
func Record(stepName string, opts RecordOptions) (*Link, error) {
	if stepName == "" {
		return nil, fmt.Errorf("step name is empty")
	}
	l := &Link{
		Type:        TypeLink,
		Name:        stepName,
		Command:     opts.Command,
		Materials:   map[string]artifact.DigestSet{},
		Products:    map[string]artifact.DigestSet{},
		ByProducts:  map[string]any{},
		Environment: map[string]any{},
	}
	if l.Command == nil {
		l.Command = []string{}
	}
	recOpts := artifact.RecordOptions{Algorithms: opts.Algorithms, Exclude: opts.Exclude}

	if opts.MaterialsDir != "" {
		m, err := artifact.Record(opts.MaterialsDir, recOpts)
		if err != nil {
			return nil, fmt.Errorf("record materials: %w", err)
		}
		l.Materials = m
	}

	if len(opts.Command) > 0 {
		if err := runCommand(l, opts); err != nil {
			return nil, err
		}
	}

	if opts.ProductsDir != "" {
		p, err := artifact.Record(opts.ProductsDir, recOpts)
		if err != nil {
			return nil, fmt.Errorf("record products: %w", err)
		}
		l.Products = p
	}
	return l, nil
}

func runCommand(l *Link, opts RecordOptions) error {
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return fmt.Errorf("run %q: %w", opts.Command[0], err)
		}
		code = exitErr.ExitCode()
	}
	l.ByProducts["stdout"] = stdout.String()
	l.ByProducts["stderr"] = stderr.String()
	l.ByProducts["return-value"] = code
	return nil
}

// SignAndWrite signs the link with key and writes it under dir using the
// canonical filename. Returns the path written. A link without a type tag
// gets one; anything other than TypeLink is refused, since the loader
// would skip the resulting file.
func SignAndWrite(l *Link, key *keys.Key, dir string) (string, error) {
	if l == nil || l.Name == "" {
		return "", fmt.Errorf("link has no step name")
	}
	if l.Type == "" {
		tagged := *l
		tagged.Type = TypeLink
		l = &tagged
	}
	if l.Type != TypeLink {
		return "", fmt.Errorf("unexpected _type %q (want %q)", l.Type, TypeLink)
	}
	m, err := metablock.New(l)
	if err != nil {
		return "", err
	}
	if err := m.Sign(key); err != nil {
		return "", err
	}
	pub, err := key.Public()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FilenameFor(l.Name, pub.KeyID))
	if err := metablock.Dump(m, path); err != nil {
		return "", err
	}
	return path, nil
}
