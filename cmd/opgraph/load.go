package main

import (
	"io"

	"github.com/alexisbeaulieu97/opgraph/internal/config"
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator/builtin"
)

// loadNetwork parses and compiles a definition. Sink operators write to
// sinkWriter.
func loadNetwork(path string, sinkWriter io.Writer) (*config.Definition, *network.Network, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, nil, err
	}
	def, err := config.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := builtin.Default(builtin.Options{SinkWriter: sinkWriter})
	if err != nil {
		return nil, nil, err
	}
	net, err := config.Compile(def, reg)
	if err != nil {
		return nil, nil, err
	}
	return def, net, nil
}
