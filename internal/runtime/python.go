package runtime

// PythonRuntime runs Python 3 scripts.
type PythonRuntime struct{}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) Extensions() []string { return []string{".py"} }

func (p *PythonRuntime) Command(scriptPath string) []string {
	return []string{
		"python3",
		"-B", // Don't write .pyc files next to the temporary script
		scriptPath,
	}
}
