package main

import (
	"github.com/cockroachdb/errors"

	internalconfig "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/control"
)

// newHostClient builds a control client for the running daemon from the
// local configuration.
func newHostClient() (*control.Client, error) {
	store, err := internalconfig.NewStore()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config store")
	}

	global, err := store.LoadGlobal()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	return control.NewClient(global.HostSocketPath(), global.HostRequestTimeout()), nil
}
