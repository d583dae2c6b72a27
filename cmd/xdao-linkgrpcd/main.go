package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"xdao.co/latch/storage"
	"xdao.co/latch/storage/grpcstore"
	"xdao.co/latch/storage/storeconfig"
	"xdao.co/latch/storage/storeregistry"

	_ "xdao.co/latch/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("xdao-linkgrpcd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7791", "listen address")
	backend := fs.String("backend", "localfs", "evidence store backend name")
	configPath := fs.String("config", "", "store config file (overrides -backend)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	storeregistry.RegisterFlags(fs, storeregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range storeregistry.List(storeregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	store, closeFn, err := openStore(*backend, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{Store: store})

	fmt.Fprintf(os.Stderr, "xdao-linkgrpcd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(backend, configPath string) (storage.Store, func() error, error) {
	if configPath != "" {
		cfg, err := storeconfig.LoadFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(storeregistry.UsageDaemon, "")
	}
	return storeregistry.Open(backend, storeregistry.UsageDaemon)
}
