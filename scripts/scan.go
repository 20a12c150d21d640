//go:build ignore

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/specvital/lwctest/pkg/discovery"
	"github.com/specvital/lwctest/pkg/index"
	"github.com/specvital/lwctest/pkg/parser/jstest"
	"github.com/specvital/lwctest/pkg/workspace"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/scan.go <path>\n")
		os.Exit(1)
	}

	path := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	idx := index.New(path,
		index.WithScanner(discovery.NewScanner()),
		index.WithParser(jstest.NewAdapter()))

	files, err := idx.FindAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan error: %v\n", err)
		os.Exit(1)
	}
	stats, err := idx.Warm(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}

	testCount := 0
	for _, f := range files {
		testCount += len(idx.FindCases(ctx, f.Path))
	}

	output := map[string]any{
		"workspaceType": workspace.Detect(path).Type,
		"filesMatched":  len(files),
		"filesParsed":   stats.Parsed,
		"parseFailures": stats.Failed,
		"testCount":     testCount,
		"duration":      time.Since(start).String(),
	}
	json.NewEncoder(os.Stdout).Encode(output)
}
