package process

import "github.com/kingrea/editorbridge/internal/catalog"

// Outcome is the single completion report for one item.
type Outcome struct {
	Artifacts []string
	Digest    string
	Err       error
}

// Succeeded reports whether the item produced its result data.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Processor starts work for one item and reports completion through done.
type Processor interface {
	Process(item catalog.Item, outputDir string, done func(Outcome))
}

// Func adapts a function into a Processor.
type Func func(item catalog.Item, outputDir string, done func(Outcome))

// Process executes f(item, outputDir, done).
func (f Func) Process(item catalog.Item, outputDir string, done func(Outcome)) {
	f(item, outputDir, done)
}
