// internal/judge/cache.go
package judge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Cache memoizes judge verdicts in a JSONL file so repeated suite runs do
// not pay twice for the same evaluation. Rows are append-only; on open the
// whole file is replayed into memory with later rows winning.
type Cache struct {
	path string

	mu    sync.Mutex
	index map[string]schemas.JudgeScore
}

// OpenCache loads the cache at path. A missing file yields an empty cache;
// malformed lines are skipped rather than failing the load.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, index: make(map[string]schemas.JudgeScore)}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat judge cache: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("judge cache path is a directory: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open judge cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row schemas.JudgeCacheEntry
		if err := json.Unmarshal(line, &row); err != nil {
			continue
		}
		if row.Key == "" {
			continue
		}
		c.index[row.Key] = row.Value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read judge cache: %w", err)
	}

	return c, nil
}

// Get returns the memoized verdict for key, if any.
func (c *Cache) Get(key string) (schemas.JudgeScore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	score, ok := c.index[key]
	return score, ok
}

// Put appends one row to the cache file and updates the in-memory index.
func (c *Cache) Put(key string, score schemas.JudgeScore) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dir := filepath.Dir(c.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create judge cache dir: %w", err)
		}
	}

	row := schemas.JudgeCacheEntry{Timestamp: time.Now(), Key: key, Value: score}
	encoded, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode judge cache row: %w", err)
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open judge cache for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("failed to append judge cache row: %w", err)
	}

	c.index[key] = score
	return nil
}

// Len reports the number of distinct keys currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
