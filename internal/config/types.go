// Package config loads network definition documents and compiles them into
// networks ready for the scheduler.
package config

// Definition is a parsed network definition document.
type Definition struct {
	Version     string    `yaml:"version" validate:"required,semver"`
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description,omitempty"`
	Settings    Settings  `yaml:"settings"`
	Nodes       []NodeDef `yaml:"nodes" validate:"dive"`
	Edges       []EdgeDef `yaml:"edges" validate:"dive"`

	// Path is the file the definition was read from, if any.
	Path string `yaml:"-"`
}

// Settings carries run-level defaults. Command line flags override them.
type Settings struct {
	Parallel      int    `yaml:"parallel" validate:"gte=0,lte=1024"`
	CheckpointDir string `yaml:"checkpoint_dir,omitempty"`
	Compression   string `yaml:"compression,omitempty" validate:"omitempty,oneof=none zstd"`
	Metrics       bool   `yaml:"metrics,omitempty"`
}

// NodeDef declares one node.
type NodeDef struct {
	ID     string         `yaml:"id" validate:"required,node_id"`
	Op     string         `yaml:"op" validate:"required,opcode"`
	Params map[string]any `yaml:"params,omitempty"`
}

// EdgeDef connects an output port to an input port, written "<node>.<port>".
type EdgeDef struct {
	From string `yaml:"from" validate:"required,endpoint"`
	To   string `yaml:"to" validate:"required,endpoint"`
}

// NodeIndex maps node ids to their position in Nodes.
func (d *Definition) NodeIndex() map[string]int {
	index := make(map[string]int, len(d.Nodes))
	for i, n := range d.Nodes {
		index[n.ID] = i
	}
	return index
}
