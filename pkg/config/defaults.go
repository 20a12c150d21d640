package config

import "time"

const (
	// FileName is the optional project configuration file in the workspace root.
	FileName = ".lwctest.yaml"
	// EnvFileName is the optional dotenv file in the workspace root.
	EnvFileName = ".env"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LWCTEST_"

	DefaultTestGlob     = "**/lwc/**/*.test.js"
	DefaultResultsDir   = ".sfdx/tools/testresults/lwc"
	DefaultDisposeDelay = 500 * time.Millisecond
	DefaultLogLevel     = "info"
)

// DefaultExclude are directory names skipped on top of the scanner's own skip set.
var DefaultExclude = []string{
	"node_modules",
}
