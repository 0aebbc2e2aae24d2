package us

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	emptyFile     = ".no-data"
	completedFile = ".last-completed"
)

// progress remembers, per gathering day, which symbols returned no bars and
// which end date was last fully gathered, so a crashed or repeated run does
// not refetch what it already knows.
type progress struct {
	mu    sync.Mutex
	dir   string
	empty map[string]struct{}
}

// loadProgress reads the progress files under dir, creating dir if needed.
func loadProgress(dir string) (*progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	p := &progress{dir: dir, empty: make(map[string]struct{})}

	data, err := os.ReadFile(filepath.Join(dir, emptyFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if sym := strings.TrimSpace(line); sym != "" {
			p.empty[sym] = struct{}{}
		}
	}
	return p, nil
}

// NoData reports whether symbol was already found to have no bars.
func (p *progress) NoData(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.empty[symbol]
	return ok
}

// MarkNoData records symbols that returned no bars.
func (p *progress) MarkNoData(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var added []string
	for _, s := range symbols {
		if _, ok := p.empty[s]; !ok {
			p.empty[s] = struct{}{}
			added = append(added, s)
		}
	}
	if len(added) == 0 {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(p.dir, emptyFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.Join(added, "\n") + "\n")
	return err
}

// LastCompleted returns the last fully gathered end date, or "".
func (p *progress) LastCompleted() string {
	data, err := os.ReadFile(filepath.Join(p.dir, completedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// MarkCompleted records date as fully gathered.
func (p *progress) MarkCompleted(date string) error {
	return os.WriteFile(filepath.Join(p.dir, completedFile), []byte(date), 0o644)
}

// Reset forgets the no-data set. It is called when a new end date starts,
// since a symbol empty yesterday may list today.
func (p *progress) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.empty = make(map[string]struct{})
	err := os.Remove(filepath.Join(p.dir, emptyFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// noDataSymbols returns the no-data set, sorted.
func (p *progress) noDataSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.empty))
	for s := range p.empty {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
