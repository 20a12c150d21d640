// Command lwctest lists, runs, debugs and watches LWC Jest tests of a Salesforce
// DX workspace.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
