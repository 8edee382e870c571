package validator

import (
	"context"
	"runtime"
	"sync"

	"github.com/cfncheck/cfncheck/internal/schema"
)

// Source is one template to lint, named for reporting.
type Source struct {
	Name    string
	Content []byte
}

type FileResult struct {
	Name   string
	Result *Result
	Err    error
}

// LintAll lints every source with a pool of workers sharing the read-only
// table. Results keep the order of sources. Sources not reached before ctx is
// cancelled carry ctx's error.
func LintAll(ctx context.Context, table *schema.Table, sources []Source, opts Options) []FileResult {
	results := make([]FileResult, len(sources))
	for i, s := range sources {
		results[i] = FileResult{Name: s.Name}
	}

	numWorkers := runtime.NumCPU()
	if numWorkers < 4 {
		numWorkers = 4
	}
	if numWorkers > len(sources) {
		numWorkers = len(sources)
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}
				res, err := Lint(table, sources[idx].Content, opts)
				results[idx].Result, results[idx].Err = res, err
			}
		}()
	}

queue:
	for i := range sources {
		select {
		case <-ctx.Done():
			for j := i; j < len(sources); j++ {
				results[j].Err = ctx.Err()
			}
			break queue
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()
	return results
}
