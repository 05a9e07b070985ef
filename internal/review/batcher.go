package review

import "github.com/sanix-darker/prbot/internal/core"

// Plan splits files into batches of batchSize, preserving order. Only the
// last batch may be short; no input means no batch. A non-positive size is
// treated as 1.
func Plan(files []core.FileChange, batchSize int) []Batch {
	if len(files) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	total := (len(files) + batchSize - 1) / batchSize
	batches := make([]Batch, 0, total)
	for start := 0; start < len(files); start += batchSize {
		end := min(start+batchSize, len(files))
		batches = append(batches, Batch{
			Files: files[start:end:end],
			Index: len(batches),
			Total: total,
		})
	}
	return batches
}

// Paths returns the paths of the batch files.
func (b Batch) Paths() []string {
	return core.Paths(b.Files)
}
