package journal

import "errors"

// ErrNoRun indicates a record or query before BeginRun established a run.
var ErrNoRun = errors.New("journal: no active run")
