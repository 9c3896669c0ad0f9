// Package servicedir resolves the names of monitored units to their data directories.
package servicedir

import (
	"os"
	"path/filepath"
	"strings"
)

// PluginExt is the file extension of an installed plugin.
const PluginExt = ".jar"

// Unit is a resolved unit whose data directory can be backed up.
type Unit struct {
	Name    string
	DataDir string
}

// Directory looks up running units by name.
type Directory interface {
	FindByName(name string) (Unit, bool)
}

// Statically assert that both implementations satisfy Directory.
var (
	_ Directory = (*PluginFolder)(nil)
	_ Directory = Static(nil)
)

// PluginFolder resolves units against a plugin host's plugins folder. A unit is present
// when <root>/<name>.jar exists; its data directory is <root>/<name>.
type PluginFolder struct {
	root string
}

// NewPluginFolder creates a PluginFolder rooted at the given plugins folder.
func NewPluginFolder(root string) *PluginFolder {
	return &PluginFolder{root: root}
}

// FindByName returns the unit installed under name. Names that contain a path separator
// or refer to the folder itself are never resolved.
func (p *PluginFolder) FindByName(name string) (Unit, bool) {
	if !ValidName(name) {
		return Unit{}, false
	}
	info, err := os.Stat(filepath.Join(p.root, name+PluginExt))
	if err != nil || info.IsDir() {
		return Unit{}, false
	}
	return Unit{Name: name, DataDir: filepath.Join(p.root, name)}, true
}

// Static is a fixed name to data directory mapping.
type Static map[string]string

// FindByName returns the unit registered under name.
func (s Static) FindByName(name string) (Unit, bool) {
	dir, ok := s[name]
	if !ok {
		return Unit{}, false
	}
	return Unit{Name: name, DataDir: dir}, true
}

// ValidName reports whether name can be used as a unit name. A valid name is a single
// path element.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
