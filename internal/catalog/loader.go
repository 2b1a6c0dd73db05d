package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// moduleFile is the on-disk shape of one module YAML document.
type moduleFile struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Order       int           `yaml:"order"`
	Active      *bool         `yaml:"is_active"`
	Chapters    []chapterFile `yaml:"chapters"`
}

type chapterFile struct {
	ID      string       `yaml:"id"`
	Title   string       `yaml:"title"`
	Order   int          `yaml:"order"`
	Active  *bool        `yaml:"is_active"`
	Content *contentFile `yaml:"content"`
	Quiz    *Quiz        `yaml:"quiz"`
}

type contentFile struct {
	ID       string      `yaml:"id"`
	Type     ContentType `yaml:"type"`
	URL      string      `yaml:"url"`
	Duration float64     `yaml:"duration"`
	Active   *bool       `yaml:"is_active"`
}

// Loader reads a directory of module YAML files.
type Loader struct {
	rootDir string
	modules []moduleFile
}

// NewLoader creates a loader and parses every *.yaml / *.yml file under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{rootDir: rootDir}
	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	sort.Slice(l.modules, func(i, j int) bool { return l.modules[i].Order < l.modules[j].Order })

	slog.Info("catalog loaded", "dir", rootDir, "modules", len(l.modules))
	return l, nil
}

// Modules returns the number of module documents found.
func (l *Loader) Modules() int {
	return len(l.modules)
}

// Seed writes the loaded catalog through repo. Every entity passes the same
// validation as an admin write.
func (l *Loader) Seed(ctx context.Context, repo Repository) error {
	for _, mf := range l.modules {
		m, err := repo.CreateModule(ctx, Module{
			ID:          mf.ID,
			Title:       mf.Title,
			Description: mf.Description,
			Order:       mf.Order,
			IsActive:    active(mf.Active),
		})
		if err != nil {
			return fmt.Errorf("seed module %q: %w", mf.ID, err)
		}

		for _, cf := range mf.Chapters {
			ch, err := repo.CreateChapter(ctx, Chapter{
				ID:       cf.ID,
				ModuleID: m.ID,
				Title:    cf.Title,
				Order:    cf.Order,
				IsActive: active(cf.Active),
			})
			if err != nil {
				return fmt.Errorf("seed chapter %q: %w", cf.ID, err)
			}

			if cf.Content != nil {
				if _, err := repo.CreateContent(ctx, Content{
					ID:        cf.Content.ID,
					ChapterID: ch.ID,
					Type:      cf.Content.Type,
					URL:       cf.Content.URL,
					Duration:  cf.Content.Duration,
					IsActive:  active(cf.Content.Active),
				}); err != nil {
					return fmt.Errorf("seed content of chapter %q: %w", cf.ID, err)
				}
			}

			if cf.Quiz != nil {
				q := *cf.Quiz
				q.ChapterID = ch.ID
				if _, err := repo.CreateQuiz(ctx, q); err != nil {
					return fmt.Errorf("seed quiz of chapter %q: %w", cf.ID, err)
				}
			}
		}
	}
	return nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadModule(path)
		}
		return nil
	})
}

func (l *Loader) loadModule(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var mf moduleFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if mf.ID == "" {
		slog.Warn("skipping catalog file without module id", "path", path)
		return nil
	}

	l.modules = append(l.modules, mf)
	return nil
}

func active(b *bool) bool {
	return b == nil || *b
}
