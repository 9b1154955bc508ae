package engine

import (
	"wib-shield/pkg/types"
)

// Analyzer defines the interface for all detection methods.
type Analyzer interface {
	Name() string // Returns the unique name of the analyzer
	// Analyze inspects one file. content is the raw bytes, text the lossily
	// decoded form. A nil Detection means no match.
	Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error)
}

