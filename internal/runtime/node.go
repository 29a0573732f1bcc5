package runtime

// NodeRuntime runs Node.js scripts.
type NodeRuntime struct{}

func (n *NodeRuntime) Name() string { return "node" }

func (n *NodeRuntime) Extensions() []string { return []string{".js", ".mjs", ".cjs"} }

func (n *NodeRuntime) Command(scriptPath string) []string {
	return []string{"node", scriptPath}
}
