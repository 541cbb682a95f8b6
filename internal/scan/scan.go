// Package scan discovers book folders under the configured library paths
// and watch folder, enqueuing new ones at layer 1. The distilled worker.py
// took scan_library/watch_folder as injected callables; this package is
// the concrete filesystem-walking implementation those callables wrapped,
// grounded on the same leaf-folder-is-a-book assumption the path builder
// and content/audio-credits layers make about book directory layout.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/drallgood/libraryd/internal/config"
	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/logger"
)

var audioExtensions = map[string]bool{
	".m4b": true, ".mp3": true, ".m4a": true, ".flac": true,
	".ogg": true, ".opus": true, ".wma": true, ".aac": true,
}

var ebookExtensions = map[string]bool{
	".epub": true, ".mobi": true, ".azw3": true, ".pdf": true,
}

// Scanner walks configured library paths and the watch folder, discovering
// book folders not yet known to the repository.
type Scanner struct {
	Repo *database.Repository
}

// ScanLibrary walks every configured library path and enqueues any book
// folder not already tracked.
func (s *Scanner) ScanLibrary(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	for _, root := range cfg.LibraryPaths {
		if err := s.walkRoot(ctx, root, database.SourceLibrary); err != nil {
			log.Error().Err(err).Str("path", root).Msg("library scan failed for path")
		}
	}
	return nil
}

// ScanWatchFolder walks the configured watch folder on a shorter interval
// than the main library scan, per the polling contract in spec.md §4.4.
func (s *Scanner) ScanWatchFolder(ctx context.Context, cfg *config.Config) error {
	if cfg.WatchFolder == "" {
		return nil
	}
	return s.walkRoot(ctx, cfg.WatchFolder, database.SourceWatchFolder)
}

func (s *Scanner) walkRoot(ctx context.Context, root string, source database.SourceType) error {
	if root == "" {
		return nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	log := logger.Get()
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(root, e.Name())
		media, ok := classify(folder)
		if !ok {
			continue
		}

		book := &database.Book{
			Path:       folder,
			Status:     database.StatusPending,
			SourceType: source,
			MediaType:  media,
		}
		if err := s.Repo.UpsertBook(book); err != nil {
			log.Error().Err(err).Str("path", folder).Msg("failed to upsert discovered book")
			continue
		}
		if book.ID != "" {
			if err := s.Repo.Enqueue(book.ID, 5, "discovered"); err != nil {
				log.Error().Err(err).Str("path", folder).Msg("failed to enqueue discovered book")
			}
		}
	}
	return nil
}

// classify inspects a folder's immediate contents and reports whether it
// looks like a book folder, and of what media type. Nested series/multi-book
// folder detection is the layer engine's job (§4.6), not the scanner's; the
// scanner only needs to recognize "this directory contains media" to seed
// the queue.
func classify(folder string) (database.MediaType, bool) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", false
	}

	hasAudio, hasEbook := false, false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if audioExtensions[ext] {
			hasAudio = true
		}
		if ebookExtensions[ext] {
			hasEbook = true
		}
	}

	switch {
	case hasAudio && hasEbook:
		return database.MediaBoth, true
	case hasAudio:
		return database.MediaAudiobook, true
	case hasEbook:
		return database.MediaEbook, true
	default:
		return "", false
	}
}
