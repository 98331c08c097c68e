package quiz

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed datasets/*.json
var datasets embed.FS

// Catalog is an in-memory Bank. It starts with the embedded datasets and
// can be extended from a directory of JSON files.
type Catalog struct {
	mu      sync.RWMutex
	quizzes map[string]*Quiz
	rng     Shuffler
}

// NewCatalog loads the embedded datasets. rng shuffles question order on
// every Load; a nil rng keeps file order.
func NewCatalog(rng Shuffler) (*Catalog, error) {
	c := &Catalog{
		quizzes: make(map[string]*Quiz),
		rng:     rng,
	}
	if err := c.loadFS(datasets, "datasets"); err != nil {
		return nil, fmt.Errorf("loading embedded datasets: %w", err)
	}
	return c, nil
}

// LoadDir adds every *.json quiz found in dir. Entries replace embedded
// quizzes with the same ID.
func (c *Catalog) LoadDir(dir string) error {
	return c.loadFS(os.DirFS(dir), ".")
}

func (c *Catalog) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, e.Name())))
		if err != nil {
			return err
		}
		var q Quiz
		if err := json.Unmarshal(data, &q); err != nil {
			return fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		if err := c.Add(&q); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		slog.Debug("quiz loaded", "id", q.ID, "questions", len(q.Questions), "file", e.Name())
	}
	return nil
}

// Add validates q and registers a private copy of it.
func (c *Catalog) Add(q *Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[q.ID] = q.clone()
	return nil
}

// List returns previews sorted by title.
func (c *Catalog) List() []Preview {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]Preview, 0, len(c.quizzes))
	for _, q := range c.quizzes {
		list = append(list, q.Preview())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Title == list[j].Title {
			return list[i].ID < list[j].ID
		}
		return list[i].Title < list[j].Title
	})
	return list
}

// Load returns a copy of the quiz with its questions in a fresh order.
func (c *Catalog) Load(ctx context.Context, id string) (*Quiz, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	q, ok := c.quizzes[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
	}
	cp := q.clone()
	if c.rng != nil {
		c.rng.Shuffle(len(cp.Questions), func(i, j int) {
			cp.Questions[i], cp.Questions[j] = cp.Questions[j], cp.Questions[i]
		})
	}
	return cp, nil
}
