package workspace

import (
	"context"
	"sync"

	"github.com/fakeyudi/inkwell/internal/persist"
)

// ownWrites remembers the last content this process wrote to each path so
// that the watcher events those writes cause are not taken for external
// changes. Writes run off the loop, hence the lock.
type ownWrites struct {
	mu   sync.Mutex
	last map[string]string
}

func (o *ownWrites) record(path, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = make(map[string]string)
	}
	o.last[path] = content
}

func (o *ownWrites) forget(path string) {
	o.mu.Lock()
	delete(o.last, path)
	o.mu.Unlock()
}

// wrote reports whether content is what this process last wrote to path.
func (o *ownWrites) wrote(path, content string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	last, ok := o.last[path]
	return ok && last == content
}

// recordingGateway records every document write before it reaches disk, so
// the record exists by the time the watcher reports the write.
type recordingGateway struct {
	persist.Gateway
	writes *ownWrites
}

func (g recordingGateway) WriteDocument(ctx context.Context, path, content string) error {
	g.writes.record(path, content)
	return g.Gateway.WriteDocument(ctx, path, content)
}
