package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/latch/keys"
	"xdao.co/latch/layout"
	"xdao.co/latch/link"
	"xdao.co/latch/metablock"
	"xdao.co/latch/storage"
	"xdao.co/latch/storage/bundle"
	"xdao.co/latch/storage/storeconfig"
	"xdao.co/latch/storage/storeregistry"
	"xdao.co/latch/summary"
	"xdao.co/latch/verify"

	_ "xdao.co/latch/storage/grpcstore"
	_ "xdao.co/latch/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "keygen":
		return cmdKeygen(args[1:], out, errOut)
	case "layout":
		return cmdLayout(args[1:], out, errOut)
	case "record":
		return cmdRecord(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "image-verify":
		return cmdImageVerify(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-latch: supply-chain layout, evidence, and verification CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-latch keygen -k <name> [-s <bits>] [--scheme rsa|ed25519|dilithium3] [--force] [--store-dir <dir>]")
	fmt.Fprintln(w, "  xdao-latch layout update-keys -l <layout> -k <pubkey> [-k ...]")
	fmt.Fprintln(w, "  xdao-latch layout sign -l <layout> -k <privkey> [-k ...] [-o <out>]")
	fmt.Fprintln(w, "  xdao-latch record --step <name> --key <privkey> [--materials <dir>] [--products <dir>] [--algorithms <list>] [-o <dir>] [-- <cmd> ...]")
	fmt.Fprintln(w, "  xdao-latch verify --layout <file> --verification-keys <pub>[,...] --link-dir <dir> [--mode strict|permissive] [--work-dir <dir>] [--summary-key <privkey>] [--summary-out <file>] [--supersedes <file>]")
	fmt.Fprintln(w, "  xdao-latch store put [store flags] <file>")
	fmt.Fprintln(w, "  xdao-latch store get [store flags] --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  xdao-latch bundle export [store flags] -o <file> (--cid <cid> ... | --evidence <dir>)")
	fmt.Fprintln(w, "  xdao-latch bundle import [store flags] <file>")
	fmt.Fprintln(w, "  xdao-latch image-verify --image <ref> --identity-regexp <re> --oidc-issuer <url>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keygen without --store-dir writes ./<name> and ./<name>.pub")
	fmt.Fprintln(w, "  - verification keys come from files, never from the layout itself")
	fmt.Fprintln(w, "  - store flags: --backend <name> plus backend flags, or --config <store.json>")
	fmt.Fprintln(w, "  - image-verify shells out to the local 'cosign' CLI")
}

func cmdKeygen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var bits int
	var scheme string
	var force bool
	var storeDir string
	fs.StringVar(&name, "k", "", "Key name")
	fs.IntVar(&bits, "s", keys.DefaultRSABits, "RSA key size in bits (rsa scheme only)")
	fs.StringVar(&scheme, "scheme", "rsa", "Key scheme: rsa, ed25519, or dilithium3 (experimental)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	fs.StringVar(&storeDir, "store-dir", "", "Save into the key store at this directory instead of the working directory")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing -k <name>")
		return 2
	}

	var k *keys.Key
	var err error
	switch scheme {
	case "rsa":
		k, err = keys.GenerateRSA(bits)
	case "ed25519":
		k, err = keys.GenerateEd25519(nil)
	case "dilithium3":
		k, err = keys.GenerateDilithium3(nil)
	default:
		fmt.Fprintf(errOut, "unknown scheme %q\n", scheme)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "generate: %v\n", err)
		return 1
	}

	var privPath string
	if storeDir != "" {
		ks, err := keys.OpenStore(storeDir)
		if err != nil {
			fmt.Fprintf(errOut, "key store: %v\n", err)
			return 1
		}
		privPath, err = ks.Save(name, k, force)
		if err != nil {
			fmt.Fprintf(errOut, "save: %v\n", err)
			return 1
		}
	} else {
		privPath, _, err = keys.WriteKeyPair(name, k, force)
		if err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
	}

	pub, err := k.Public()
	if err != nil {
		fmt.Fprintf(errOut, "keyid: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s\t%s\n", pub.KeyID, privPath)
	return 0
}

func cmdLayout(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-latch layout <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: update-keys, sign")
		return 2
	}
	switch args[0] {
	case "update-keys":
		return cmdLayoutUpdateKeys(args[1:], out, errOut)
	case "sign":
		return cmdLayoutSign(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown layout subcommand: %s\n", args[0])
		return 2
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdLayoutUpdateKeys(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("layout update-keys", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var layoutPath string
	var pubPaths stringList
	fs.StringVar(&layoutPath, "l", "", "Layout file")
	fs.Var(&pubPaths, "k", "Functionary public key file (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if layoutPath == "" || len(pubPaths) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-latch layout update-keys -l <layout> -k <pubkey> [-k ...]")
		return 2
	}

	if err := layout.InjectKeyFile(layoutPath, pubPaths...); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "updated %s (%d key(s))\n", layoutPath, len(pubPaths))
	return 0
}

func cmdLayoutSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("layout sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var layoutPath string
	var outPath string
	var keyPaths stringList
	fs.StringVar(&layoutPath, "l", "", "Layout file")
	fs.StringVar(&outPath, "o", "", "Output file (default: in place)")
	fs.Var(&keyPaths, "k", "Layout signing private key file (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if layoutPath == "" || len(keyPaths) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-latch layout sign -l <layout> -k <privkey> [-k ...] [-o <out>]")
		return 2
	}

	privs := make([]*keys.Key, 0, len(keyPaths))
	for _, p := range keyPaths {
		k, err := keys.LoadPrivate(p)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			return 1
		}
		privs = append(privs, k)
	}
	if err := layout.SignFile(layoutPath, outPath, privs...); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		outPath = layoutPath
	}
	fmt.Fprintf(out, "signed %s\n", outPath)
	return 0
}

func cmdRecord(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var step string
	var keyPath string
	var materialsDir string
	var productsDir string
	var outDir string
	var algorithms string
	var exclude stringList
	fs.StringVar(&step, "step", "", "Step name")
	fs.StringVar(&keyPath, "key", "", "Functionary private key file")
	fs.StringVar(&materialsDir, "materials", "", "Directory to record as materials")
	fs.StringVar(&productsDir, "products", "", "Directory to record as products")
	fs.StringVar(&outDir, "o", ".", "Directory to write the signed link into")
	fs.StringVar(&algorithms, "algorithms", "", "Comma-separated digest algorithms: sha256, sha512, sha3-256 (default sha256)")
	fs.Var(&exclude, "exclude", "Glob of paths to leave out (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if step == "" || keyPath == "" {
		fmt.Fprintln(errOut, "usage: xdao-latch record --step <name> --key <privkey> [--materials <dir>] [--products <dir>] [-o <dir>] [-- <cmd> ...]")
		return 2
	}

	k, err := keys.LoadPrivate(keyPath)
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", keyPath, err)
		return 1
	}

	var algs []string
	for _, a := range strings.Split(algorithms, ",") {
		if a = strings.TrimSpace(a); a != "" {
			algs = append(algs, a)
		}
	}

	l, err := link.Record(step, link.RecordOptions{
		MaterialsDir: materialsDir,
		ProductsDir:  productsDir,
		Command:      fs.Args(),
		Algorithms:   algs,
		Exclude:      exclude,
	})
	if err != nil {
		fmt.Fprintf(errOut, "record: %v\n", err)
		return 1
	}
	path, err := link.SignAndWrite(l, k, outDir)
	if err != nil {
		fmt.Fprintf(errOut, "write link: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, path)
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var layoutPath string
	var keyList string
	var linkDir string
	var mode string
	var workDir string
	var summaryKeyPath string
	var summaryOut string
	var supersedesPath string
	fs.StringVar(&layoutPath, "layout", "", "Signed layout file")
	fs.StringVar(&keyList, "verification-keys", "", "Comma-separated layout public key files")
	fs.StringVar(&linkDir, "link-dir", ".", "Directory holding link evidence")
	fs.StringVar(&mode, "mode", "permissive", "Treatment of an empty link directory: permissive or strict")
	fs.StringVar(&workDir, "work-dir", "", "Directory inspections run in")
	fs.StringVar(&summaryKeyPath, "summary-key", "", "Private key to sign a verification summary with")
	fs.StringVar(&summaryOut, "summary-out", "", "Summary output file (default: <layout>.summary)")
	fs.StringVar(&supersedesPath, "supersedes", "", "Earlier summary file the new summary replaces")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if layoutPath == "" || keyList == "" {
		fmt.Fprintln(errOut, "usage: xdao-latch verify --layout <file> --verification-keys <pub>[,...] --link-dir <dir> [--mode strict|permissive]")
		return 2
	}
	vm, err := verify.ParseMode(mode)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	var pubs []*keys.Key
	for _, p := range strings.Split(keyList, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, err := keys.LoadPublic(p)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			return 1
		}
		pubs = append(pubs, k)
	}

	res, err := verify.Verify(context.Background(), verify.Options{
		LayoutPath:       layoutPath,
		VerificationKeys: pubs,
		LinkDir:          linkDir,
		Mode:             vm,
		WorkDir:          workDir,
		Warn: func(format string, a ...any) {
			fmt.Fprintf(errOut, "warning: "+format+"\n", a...)
		},
	})
	if err != nil {
		if id := verify.RuleID(err); id != "" {
			fmt.Fprintf(errOut, "verification failed [%s]: %v\n", id, err)
		} else {
			fmt.Fprintf(errOut, "verification failed: %v\n", err)
		}
		return 1
	}

	if summaryKeyPath != "" {
		sk, err := keys.LoadPrivate(summaryKeyPath)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", summaryKeyPath, err)
			return 1
		}
		if summaryOut == "" {
			summaryOut = layoutPath + ".summary"
		}
		if supersedesPath != "" {
			old, err := metablock.Load(supersedesPath)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", supersedesPath, err)
				return 1
			}
			env, err := summary.Supersede(res, sk, time.Time{}, old)
			if err != nil {
				fmt.Fprintf(errOut, "supersede summary: %v\n", err)
				return 1
			}
			if err := metablock.Dump(env, summaryOut); err != nil {
				fmt.Fprintf(errOut, "write summary: %v\n", err)
				return 1
			}
		} else if err := summary.Write(summaryOut, res, sk); err != nil {
			fmt.Fprintf(errOut, "write summary: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(out, "PASSED %s\n", res.LayoutCID)
	for _, sr := range res.Steps {
		fmt.Fprintf(out, "  %s signed-by=%s\n", sr.Name, strings.Join(sr.SignedBy, ","))
	}
	return 0
}

type storeFlags struct {
	backend      string
	configPath   string
	listBackends bool
}

func (c *storeFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "Evidence store backend name")
	fs.StringVar(&c.configPath, "config", "", "Store config file (overrides --backend)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	storeregistry.RegisterFlags(fs, storeregistry.UsageCLI)
}

func (c *storeFlags) open() (storage.Store, func() error, error) {
	if c.configPath != "" {
		cfg, err := storeconfig.LoadFile(c.configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(storeregistry.UsageCLI, "")
	}
	return storeregistry.Open(c.backend, storeregistry.UsageCLI)
}

func printBackends(w io.Writer) {
	for _, b := range storeregistry.List(storeregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-latch store <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get")
		return 2
	}
	switch args[0] {
	case "put":
		return cmdStorePut(args[1:], out, errOut)
	case "get":
		return cmdStoreGet(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n", args[0])
		return 2
	}
}

func cmdStorePut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common storeFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-latch store put [store flags] <file>")
		return 2
	}

	s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	id, err := s.Put(b)
	if err != nil {
		fmt.Fprintf(errOut, "put: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, id.String())
	return 0
}

func cmdStoreGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common storeFlags
	common.add(fs)
	var cidStr string
	var outFile string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outFile, "out", "", "Write bytes to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "usage: xdao-latch store get [store flags] --cid <cid> [--out <file>]")
		return 2
	}
	id, err := cid.Decode(cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "invalid cid: %v\n", err)
		return 2
	}

	s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	b, err := s.Get(id)
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, b, 0o644); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", outFile, err)
			return 1
		}
		return 0
	}
	_, _ = out.Write(b)
	return 0
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-latch bundle <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

// cmdBundleExport ships an evidence set as one tar file. Either name CIDs
// already in the store, or point at a directory of layout/link files: those
// are put into the store first and labeled by filename.
func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common storeFlags
	common.add(fs)
	var outFile string
	var evidenceDir string
	var cidList stringList
	fs.StringVar(&outFile, "o", "", "Bundle output file")
	fs.StringVar(&evidenceDir, "evidence", "", "Directory of evidence files to store and export")
	fs.Var(&cidList, "cid", "CID to include (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if outFile == "" || (evidenceDir == "" && len(cidList) == 0) {
		fmt.Fprintln(errOut, "usage: xdao-latch bundle export [store flags] -o <file> (--cid <cid> ... | --evidence <dir>)")
		return 2
	}

	s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	var ids []cid.Cid
	labels := map[string]cid.Cid{}
	for _, cs := range cidList {
		id, err := cid.Decode(cs)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid %q: %v\n", cs, err)
			return 2
		}
		ids = append(ids, id)
	}
	if evidenceDir != "" {
		entries, err := os.ReadDir(evidenceDir)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", evidenceDir, err)
			return 1
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			b, err := os.ReadFile(filepath.Join(evidenceDir, de.Name()))
			if err != nil {
				fmt.Fprintf(errOut, "read %s: %v\n", de.Name(), err)
				return 1
			}
			id, err := s.Put(b)
			if err != nil {
				fmt.Fprintf(errOut, "put %s: %v\n", de.Name(), err)
				return 1
			}
			ids = append(ids, id)
			labels[de.Name()] = id
		}
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, s, ids, bundle.ExportOptions{IncludeIndex: true, Labels: labels}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outFile, err)
		return 1
	}
	fmt.Fprintf(out, "exported %d block(s) to %s\n", len(ids), outFile)
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common storeFlags
	common.add(fs)
	var ignoreUnknown bool
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown tar entries instead of failing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-latch bundle import [store flags] <file>")
		return 2
	}

	s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer func() { _ = closeFn() }()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", fs.Arg(0), err)
		return 1
	}
	defer f.Close()

	if err := bundle.ImportWithOptions(f, s, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown}); err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "imported %s\n", fs.Arg(0))
	return 0
}

// cmdImageVerify checks a container image signature by shelling out to the
// local cosign CLI (keyless verification against the public transparency
// log).
func cmdImageVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("image-verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var image string
	var identityRegexp string
	var oidcIssuer string
	fs.StringVar(&image, "image", "", "Image reference to verify")
	fs.StringVar(&identityRegexp, "identity-regexp", "", "Accepted certificate identity (regular expression)")
	fs.StringVar(&oidcIssuer, "oidc-issuer", "", "Accepted OIDC issuer URL")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if image == "" || identityRegexp == "" || oidcIssuer == "" {
		fmt.Fprintln(errOut, "usage: xdao-latch image-verify --image <ref> --identity-regexp <re> --oidc-issuer <url>")
		return 2
	}

	if _, err := exec.LookPath("cosign"); err != nil {
		fmt.Fprintln(errOut, "cosign not found on PATH (install sigstore cosign)")
		return 1
	}

	cmd := exec.Command("cosign", "verify",
		"--certificate-identity-regexp", identityRegexp,
		"--certificate-oidc-issuer", oidcIssuer,
		image,
	)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(errOut, "cosign verify failed (exit %d)\n%s\n", exitErr.ExitCode(), strings.TrimSpace(errBuf.String()))
			return 1
		}
		fmt.Fprintf(errOut, "cosign verify: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "verified %s\n", image)
	if s := strings.TrimSpace(outBuf.String()); s != "" {
		fmt.Fprintln(out, s)
	}
	return 0
}
