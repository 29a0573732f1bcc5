package runtime

// GoRuntime runs single-file Go programs with `go run`.
type GoRuntime struct{}

func (g *GoRuntime) Name() string { return "go" }

func (g *GoRuntime) Extensions() []string { return []string{".go"} }

// Command relies on the temporary file keeping its ".go" suffix; go run
// rejects files without it.
func (g *GoRuntime) Command(scriptPath string) []string {
	return []string{"go", "run", scriptPath}
}
