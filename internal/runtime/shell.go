package runtime

// ShellRuntime runs POSIX shell scripts.
type ShellRuntime struct{}

func (s *ShellRuntime) Name() string { return "sh" }

func (s *ShellRuntime) Extensions() []string { return []string{".sh"} }

func (s *ShellRuntime) Command(scriptPath string) []string {
	return []string{"/bin/sh", scriptPath}
}

// BashRuntime runs Bash scripts.
type BashRuntime struct{}

func (b *BashRuntime) Name() string { return "bash" }

func (b *BashRuntime) Extensions() []string { return []string{".bash"} }

func (b *BashRuntime) Command(scriptPath string) []string {
	return []string{"bash", scriptPath}
}
