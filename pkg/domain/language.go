// Package domain defines the core types shared by the index, the correlator and
// the execution layer.
package domain

// Language represents a source language understood by the parser adapter.
type Language string

// Supported languages for test file parsing.
const (
	LanguageJavaScript Language = "javascript"
	LanguageTSX        Language = "tsx"
	LanguageTypeScript Language = "typescript"
)
