package layers

import (
	"runtime"
	"sync"
)

// parallelRows splits [0, rows) into contiguous chunks, one per worker. fn must
// only write output belonging to its own rows.
func parallelRows(rows int, fn func(start, end int)) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > rows {
		numWorkers = rows
	}
	if numWorkers <= 1 {
		fn(0, rows)
		return
	}

	rowsPerWorker := rows / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if w == numWorkers-1 {
			end = rows
		}
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
