// Package refdata loads the building, room and category tables from a TOML
// catalog into the document store.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
	"crms/internal/usecase/requests"
)

const catalogVersion = 1

type catalogEntry struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
	Active *bool  `toml:"active"`
}

type Catalog struct {
	Version    int            `toml:"version"`
	Buildings  []catalogEntry `toml:"buildings"`
	Rooms      []catalogEntry `toml:"rooms"`
	Categories []catalogEntry `toml:"categories"`
}

// ImportResult counts the entries written per table.
type ImportResult struct {
	Buildings   int
	Rooms       int
	Categories  int
	Deactivated int
}

type ImportOptions struct {
	// Deactivate marks stored entries missing from the catalog as inactive.
	Deactivate bool
}

type Importer struct {
	store ports.DocumentStore
	uow   ports.UnitOfWork
}

func NewImporter(store ports.DocumentStore, uow ports.UnitOfWork) *Importer {
	return &Importer{store: store, uow: uow}
}

func LoadCatalog(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Catalog{}, errors.New("catalog file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := toml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, errs.Wrap(err, "parse catalog")
	}
	if err := catalog.validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (c Catalog) validate() error {
	if c.Version != catalogVersion {
		return fmt.Errorf("unsupported catalog version %d: expected version = %d", c.Version, catalogVersion)
	}

	buildings := make(map[string]struct{}, len(c.Buildings))
	categories := make(map[string]struct{}, len(c.Categories))
	for _, table := range []struct {
		name    string
		entries []catalogEntry
		ids     map[string]struct{}
	}{
		{"buildings", c.Buildings, buildings},
		{"rooms", c.Rooms, map[string]struct{}{}},
		{"categories", c.Categories, categories},
	} {
		for i, entry := range table.entries {
			id := strings.TrimSpace(entry.ID)
			if id == "" {
				return fmt.Errorf("%s[%d].id is required", table.name, i)
			}
			if strings.TrimSpace(entry.Name) == "" {
				return fmt.Errorf("%s.%s.name is required", table.name, id)
			}
			if _, dup := table.ids[id]; dup {
				return fmt.Errorf("%s.%s is defined twice", table.name, id)
			}
			table.ids[id] = struct{}{}
		}
	}

	for _, room := range c.Rooms {
		parent := strings.TrimSpace(room.Parent)
		if parent == "" {
			return fmt.Errorf("rooms.%s.parent is required", room.ID)
		}
		if _, ok := buildings[parent]; !ok {
			return fmt.Errorf("rooms.%s.parent %q is not a building", room.ID, parent)
		}
	}
	for _, category := range c.Categories {
		parent := strings.TrimSpace(category.Parent)
		if parent == "" {
			continue
		}
		if _, ok := categories[parent]; !ok {
			return fmt.Errorf("categories.%s.parent %q is not a category", category.ID, parent)
		}
	}
	return nil
}

// Import upserts every catalog entry in one unit of work.
func (i *Importer) Import(ctx context.Context, catalog Catalog, opts ImportOptions) (ImportResult, error) {
	if err := catalog.validate(); err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	err := i.uow.WithTx(ctx, func(txCtx context.Context) error {
		result = ImportResult{}
		for _, table := range []struct {
			kind    request.LookupKind
			entries []catalogEntry
			count   *int
		}{
			{request.LookupBuilding, catalog.Buildings, &result.Buildings},
			{request.LookupRoom, catalog.Rooms, &result.Rooms},
			{request.LookupCategory, catalog.Categories, &result.Categories},
		} {
			collection := requests.LookupCollection(table.kind)
			seen := make(map[string]struct{}, len(table.entries))
			for _, entry := range table.entries {
				id := strings.TrimSpace(entry.ID)
				seen[id] = struct{}{}
				if err := i.store.SetDocument(txCtx, collection, id, requests.EncodeLookupEntry(entry.toLookup())); err != nil {
					return errs.Wrapf(err, "write %s/%s", collection, id)
				}
				*table.count++
			}
			if !opts.Deactivate {
				continue
			}
			deactivated, err := i.deactivateMissing(txCtx, collection, seen)
			if err != nil {
				return err
			}
			result.Deactivated += deactivated
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, errs.Wrap(err, "import catalog")
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "refdata.import")),
		"catalog imported",
		slog.Int("buildings", result.Buildings),
		slog.Int("rooms", result.Rooms),
		slog.Int("categories", result.Categories),
		slog.Int("deactivated", result.Deactivated),
	)
	return result, nil
}

// ImportFile loads and imports path.
func (i *Importer) ImportFile(ctx context.Context, path string, opts ImportOptions) (ImportResult, error) {
	catalog, err := LoadCatalog(path)
	if err != nil {
		return ImportResult{}, errs.Wrapf(err, "load catalog %s", path)
	}
	return i.Import(ctx, catalog, opts)
}

func (i *Importer) deactivateMissing(ctx context.Context, collection string, keep map[string]struct{}) (int, error) {
	docs, err := i.store.Query(ctx, collection, ports.Equal("active", true))
	if err != nil {
		return 0, errs.Wrapf(err, "read %s", collection)
	}
	count := 0
	for _, doc := range docs {
		if _, ok := keep[doc.ID]; ok {
			continue
		}
		if err := i.store.UpdateFields(ctx, collection, doc.ID, map[string]any{"active": false}); err != nil {
			return count, errs.Wrapf(err, "deactivate %s/%s", collection, doc.ID)
		}
		count++
	}
	return count, nil
}

func (e catalogEntry) toLookup() request.LookupEntry {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return request.LookupEntry{
		ID:          strings.TrimSpace(e.ID),
		DisplayName: strings.TrimSpace(e.Name),
		ParentID:    strings.TrimSpace(e.Parent),
		Active:      active,
	}
}
