// Package runtime picks an interpreter for scripts that cannot be executed
// directly because they carry no "#!" line.
package runtime

import (
	"path/filepath"
	"sort"
	"strings"
)

// Runtime defines how to run a script file with an interpreter.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "python", "node", "sh").
	Name() string

	// Extensions returns the file extensions this runtime handles (e.g., ".py").
	Extensions() []string

	// Command returns the interpreter argv that runs the script at scriptPath.
	// Script arguments are appended by the caller.
	Command(scriptPath string) []string
}

// Registry maps file extensions to their Runtime implementations.
type Registry struct {
	byExt    map[string]Runtime
	fallback Runtime
}

// NewRegistry creates a registry with all supported runtimes. Files with an
// unknown or missing extension fall back to the POSIX shell, as execvp does
// for a file without a "#!" line.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:    make(map[string]Runtime),
		fallback: &ShellRuntime{},
	}
	r.Register(&ShellRuntime{})
	r.Register(&BashRuntime{})
	r.Register(&PythonRuntime{})
	r.Register(&NodeRuntime{})
	r.Register(&GoRuntime{})
	return r
}

// Register adds a runtime to the registry, replacing any runtime that
// claimed the same extensions.
func (r *Registry) Register(rt Runtime) {
	for _, ext := range rt.Extensions() {
		r.byExt[strings.ToLower(ext)] = rt
	}
}

// ForFile returns the runtime registered for filename's extension.
func (r *Registry) ForFile(filename string) (Runtime, bool) {
	rt, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return rt, ok
}

// Command returns the argv prefix that runs scriptPath. A script with a
// "#!" line is executed directly; otherwise the runtime for filename (the
// name the script was published under) is used.
func (r *Registry) Command(scriptPath, filename, script string) []string {
	if HasShebang(script) {
		return []string{scriptPath}
	}
	if rt, ok := r.ForFile(filename); ok {
		return rt.Command(scriptPath)
	}
	return r.fallback.Command(scriptPath)
}

// Extensions returns all registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// HasShebang reports whether script starts with "#!". The kernel only
// honors the marker at byte 0, so a leading BOM or blank line disqualifies it.
func HasShebang(script string) bool {
	return strings.HasPrefix(script, "#!")
}
