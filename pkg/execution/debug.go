package execution

// DebugPort is the inspector port the runner listens on in debug mode.
const DebugPort = 9229

// DebugConfiguration is a node launch configuration for a debug adapter.
type DebugConfiguration struct {
	Args                      []string `json:"args"`
	Console                   string   `json:"console"`
	Cwd                       string   `json:"cwd"`
	DisableOptimisticBPs      bool     `json:"disableOptimisticBPs"`
	InternalConsoleOptions    string   `json:"internalConsoleOptions"`
	Name                      string   `json:"name"`
	Port                      int      `json:"port"`
	Request                   string   `json:"request"`
	ResolveSourceMapLocations []string `json:"resolveSourceMapLocations"`
	RuntimeExecutable         string   `json:"runtimeExecutable"`
	SessionID                 string   `json:"sfDebugSessionId"`
	Type                      string   `json:"type"`
}

// NewDebugConfiguration builds the launch configuration for a debug invocation.
// The session id is the invocation id so the adapter's start and terminate
// events can be traced back to it.
func NewDebugConfiguration(inv *Invocation) DebugConfiguration {
	return DebugConfiguration{
		Args:                      append([]string(nil), inv.Args...),
		Console:                   "integratedTerminal",
		Cwd:                       inv.Dir,
		DisableOptimisticBPs:      true,
		InternalConsoleOptions:    "openOnSessionStart",
		Name:                      "Debug LWC test(s)",
		Port:                      DebugPort,
		Request:                   "launch",
		ResolveSourceMapLocations: []string{"**", "!**/node_modules/**"},
		RuntimeExecutable:         inv.Executable,
		SessionID:                 inv.ID,
		Type:                      "node",
	}
}
