package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"iap-coordinator/internal/config"
	"iap-coordinator/internal/repository"
)

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	defer glog.Flush()

	cmd := newRootCommand(openBackend, os.Stdout)
	if err := cmd.Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}

// openBackend opens the storage backend configured for the daemon,
// with command-line overrides applied.
func openBackend(o *storageOptions) (repository.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.storageType != "" {
		cfg.Storage.Type = o.storageType
	}
	if o.dir != "" {
		cfg.Storage.Dir = o.dir
	}
	if o.location == "" {
		o.location = cfg.Storage.Location
	}
	return repository.Open(&cfg.Storage)
}
