// Package texts is the prompt catalog for everything the bot says. The
// default copy ships embedded in the binary; an optional override directory
// lets operators rewrite any prompt without a redeploy.
package texts

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pondmobile/supportbot/core/logger"
)

//go:embed prompts/*.txt
var embedded embed.FS

// Catalog resolves prompt names to message text, override dir first,
// embedded copy second.
type Catalog struct {
	overrideDir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewCatalog builds a catalog. overrideDir may be empty; when set, a file
// <overrideDir>/<name>.txt shadows the embedded prompt of the same name.
func NewCatalog(overrideDir string) *Catalog {
	return &Catalog{
		overrideDir: overrideDir,
		cache:       make(map[string]string),
	}
}

// Get returns the prompt body for name. Unknown names return a visible
// placeholder rather than an empty message, and are logged once per call.
func (c *Catalog) Get(name string) string {
	c.mu.RLock()
	if text, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return text
	}
	c.mu.RUnlock()

	text, err := c.load(name)
	if err != nil {
		if logger.TG != nil {
			logger.TG.LogAttrs(context.Background(), slog.LevelError, "prompt.missing",
				slog.String("event", "prompt.missing"),
				slog.String("prompt", name),
				slog.String("err", err.Error()))
		}
		return fmt.Sprintf("[missing prompt: %s]", name)
	}

	c.mu.Lock()
	c.cache[name] = text
	c.mu.Unlock()
	return text
}

// Render returns the prompt with every {key} placeholder substituted.
func (c *Catalog) Render(name string, vars map[string]string) string {
	text := c.Get(name)
	for k, v := range vars {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text
}

// Welcome returns the greeting, preferring the main welcome prompt and
// falling back to the short variant when the main one is absent or blank.
func (c *Catalog) Welcome() string {
	if text, err := c.load("welcome"); err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	return c.Get("welcome_fallback")
}

// Invalidate drops the cache so edited override files are picked up.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

func (c *Catalog) load(name string) (string, error) {
	if c.overrideDir != "" {
		path := filepath.Join(c.overrideDir, name+".txt")
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimRight(string(data), "\n"), nil
		}
	}
	data, err := embedded.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("texts: prompt %q: %w", name, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
