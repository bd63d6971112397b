package asana

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jarvis/internal/capture"
)

// snapshot is one immutable discovery result. Readers always see either the
// previous snapshot or the new one, never a half-populated mapping.
type snapshot struct {
	Sections     map[string]string `json:"sections"`
	FieldGID     string            `json:"field_gid"`
	Options      map[string]string `json:"options"`
	OwnerGID     string            `json:"owner_gid"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}

// Directory resolves section and custom-field-option names to Asana GIDs.
// The mapping is discovered lazily on first use, cached in memory and in a
// JSON snapshot file, and only replaced by an explicit Refresh.
type Directory struct {
	client     *Client
	projectGID string
	fieldName  string
	cachePath  string
	logger     *zap.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// NewDirectory creates a directory for one project board. cachePath may be
// empty to disable the snapshot file.
func NewDirectory(client *Client, projectGID, fieldName, cachePath string, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		client:     client,
		projectGID: projectGID,
		fieldName:  fieldName,
		cachePath:  cachePath,
		logger:     logger,
	}
}

// current returns the cached snapshot, loading or discovering it on first use.
func (d *Directory) current(ctx context.Context) (*snapshot, error) {
	d.mu.RLock()
	snap := d.snap
	d.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap != nil {
		return d.snap, nil
	}

	if snap := d.loadCacheFile(); snap != nil {
		d.logger.Info("category directory loaded from cache file",
			zap.Int("sections", len(snap.Sections)),
			zap.Int("options", len(snap.Options)))
		d.snap = snap
		return snap, nil
	}

	snap, err := d.discover(ctx)
	if err != nil {
		return nil, err
	}
	d.snap = snap
	d.saveCacheFile(snap)
	return snap, nil
}

// Refresh forces re-discovery and atomically replaces the cached mapping.
func (d *Directory) Refresh(ctx context.Context) error {
	snap, err := d.discover(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()

	if d.cachePath != "" {
		os.Remove(d.cachePath)
	}
	d.saveCacheFile(snap)

	d.logger.Info("category directory refreshed",
		zap.Int("sections", len(snap.Sections)),
		zap.Int("options", len(snap.Options)))
	return nil
}

// discover enumerates sections, the classification enum field and the board
// owner. The three fetches run in parallel; any failure fails discovery.
func (d *Directory) discover(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{
		Sections:     make(map[string]string),
		Options:      make(map[string]string),
		DiscoveredAt: time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sections, err := d.client.Sections(gctx, d.projectGID)
		if err != nil {
			return err
		}
		for _, s := range sections {
			snap.Sections[s.Name] = s.GID
		}
		return nil
	})

	g.Go(func() error {
		fieldGID, options, err := d.client.ProjectEnumField(gctx, d.projectGID, d.fieldName)
		if err != nil {
			return err
		}
		snap.FieldGID = fieldGID
		for _, opt := range options {
			snap.Options[opt.Name] = opt.GID
		}
		return nil
	})

	g.Go(func() error {
		me, err := d.client.Me(gctx)
		if err != nil {
			return err
		}
		snap.OwnerGID = me.GID
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("directory discovery failed: %w", err)
	}

	d.logger.Info("category directory discovered",
		zap.Int("sections", len(snap.Sections)),
		zap.Int("options", len(snap.Options)),
		zap.String("field_gid", snap.FieldGID))
	return snap, nil
}

// lookupName matches a short name against a discovered mapping. Board names
// often carry emoji prefixes ("🔥 Hoy"), so an exact match is tried first
// and a suffix match second.
func lookupName(mapping map[string]string, name string) (string, bool) {
	if gid, ok := mapping[name]; ok {
		return gid, true
	}
	for full, gid := range mapping {
		if strings.HasSuffix(full, " "+name) {
			return gid, true
		}
	}
	return "", false
}

// ResolveSection maps a short section name to its GID. A miss forces one
// refresh before failing with UnknownCategoryError.
func (d *Directory) ResolveSection(ctx context.Context, name string) (string, error) {
	snap, err := d.current(ctx)
	if err != nil {
		return "", err
	}
	if gid, ok := lookupName(snap.Sections, name); ok {
		return gid, nil
	}

	d.logger.Warn("section not in cache, refreshing directory", zap.String("section", name))
	if err := d.Refresh(ctx); err != nil {
		return "", err
	}

	d.mu.RLock()
	snap = d.snap
	d.mu.RUnlock()
	if gid, ok := lookupName(snap.Sections, name); ok {
		return gid, nil
	}
	return "", &capture.UnknownCategoryError{Kind: "section", Name: name}
}

// ResolveProjectOption maps a classification project value to the custom
// field GID and option GID. A miss forces one refresh before failing with
// UnknownCategoryError.
func (d *Directory) ResolveProjectOption(ctx context.Context, project string) (string, string, error) {
	snap, err := d.current(ctx)
	if err != nil {
		return "", "", err
	}
	if gid, ok := lookupName(snap.Options, project); ok {
		return snap.FieldGID, gid, nil
	}

	d.logger.Warn("field option not in cache, refreshing directory", zap.String("project", project))
	if err := d.Refresh(ctx); err != nil {
		return "", "", err
	}

	d.mu.RLock()
	snap = d.snap
	d.mu.RUnlock()
	if gid, ok := lookupName(snap.Options, project); ok {
		return snap.FieldGID, gid, nil
	}
	return "", "", &capture.UnknownCategoryError{Kind: "field option", Name: project}
}

// OwnerGID returns the discovered board owner, used as default assignee.
func (d *Directory) OwnerGID(ctx context.Context) (string, error) {
	snap, err := d.current(ctx)
	if err != nil {
		return "", err
	}
	return snap.OwnerGID, nil
}

func (d *Directory) loadCacheFile() *snapshot {
	if d.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(d.cachePath)
	if err != nil {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		d.logger.Warn("ignoring corrupt directory cache file", zap.Error(err))
		return nil
	}
	if len(snap.Sections) == 0 || snap.FieldGID == "" {
		return nil
	}
	return &snap
}

func (d *Directory) saveCacheFile(snap *snapshot) {
	if d.cachePath == "" {
		return
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(d.cachePath), 0755); err != nil {
		d.logger.Warn("failed to create directory cache dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(d.cachePath, data, 0644); err != nil {
		d.logger.Warn("failed to write directory cache file", zap.Error(err))
	}
}
