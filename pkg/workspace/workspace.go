// Package workspace classifies a workspace root by the project files it holds.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type Type string

const (
	TypeCoreAll     Type = "CORE_ALL"
	TypeCorePartial Type = "CORE_PARTIAL"
	TypeMonorepo    Type = "MONOREPO"
	TypeSFDX        Type = "SFDX"
	TypeStandard    Type = "STANDARD"
	TypeStandardLWC Type = "STANDARD_LWC"
	TypeUnknown     Type = "UNKNOWN"
)

const (
	fileCoreWorkspace = "workspace-user.xml"
	fileLWCConfig     = "lwc.config.json"
	filePackageJSON   = "package.json"
	fileSFDXProject   = "sfdx-project.json"
)

var monorepoIndicators = []string{"lerna.json", "nx.json", "pnpm-workspace.yaml", "rush.json"}

// Result is a detected type and the file that decided it.
type Result struct {
	Evidence string
	Type     Type
}

func (r Result) IsUnknown() bool {
	return r.Type == "" || r.Type == TypeUnknown
}

func Unknown() Result {
	return Result{Type: TypeUnknown}
}

type packageJSON struct {
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
	DevDependencies map[string]json.RawMessage `json:"devDependencies"`
	LWC             json.RawMessage            `json:"lwc"`
	Workspaces      json.RawMessage            `json:"workspaces"`
}

// Detect classifies one workspace root.
func Detect(root string) Result {
	if p, ok := exists(root, fileSFDXProject); ok {
		return Result{Evidence: p, Type: TypeSFDX}
	}
	if p, ok := exists(root, fileCoreWorkspace); ok {
		return Result{Evidence: p, Type: TypeCoreAll}
	}
	if p, ok := exists(filepath.Dir(filepath.Clean(root)), fileCoreWorkspace); ok {
		return Result{Evidence: p, Type: TypeCorePartial}
	}
	if p, ok := exists(root, fileLWCConfig); ok {
		return Result{Evidence: p, Type: TypeStandardLWC}
	}

	p, ok := exists(root, filePackageJSON)
	if !ok {
		return Unknown()
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return Unknown()
	}
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return Unknown()
	}

	switch {
	case hasLWCDependency(pkg.Dependencies) || hasLWCDependency(pkg.DevDependencies) || present(pkg.LWC):
		return Result{Evidence: p, Type: TypeStandardLWC}
	case present(pkg.Workspaces):
		return Result{Evidence: p, Type: TypeMonorepo}
	}
	for _, name := range monorepoIndicators {
		if m, ok := exists(root, name); ok {
			return Result{Evidence: m, Type: TypeMonorepo}
		}
	}
	return Result{Evidence: p, Type: TypeStandard}
}

// DetectAll classifies a multi-root workspace. Mixed roots are only resolved
// when every root is CORE_PARTIAL.
func DetectAll(roots []string) Result {
	switch len(roots) {
	case 0:
		return Unknown()
	case 1:
		return Detect(roots[0])
	}

	var first Result
	for i, root := range roots {
		r := Detect(root)
		if r.Type != TypeCorePartial {
			return Unknown()
		}
		if i == 0 {
			first = r
		}
	}
	return first
}

func hasLWCDependency(deps map[string]json.RawMessage) bool {
	for name := range deps {
		if name == "lwc" || strings.HasPrefix(name, "@lwc/") {
			return true
		}
	}
	return false
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func exists(dir, name string) (string, bool) {
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}
