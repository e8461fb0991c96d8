package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"go.uber.org/zap"
)

// Snapshot schema versions. Version 1 predates the container/graph
// pairing: canvas payloads were flat container lists without bound
// graph links, and graph records carried neither scope nor generation.
const (
	VersionLegacy  = 1
	VersionCurrent = 2
)

// MigrationFunc upgrades a raw snapshot payload by one schema version
type MigrationFunc func(payload []byte) ([]byte, error)

// Migration is one registered upgrade step for one logical key
type Migration struct {
	Key         string
	FromVersion int
	ToVersion   int
	Description string
	Apply       MigrationFunc
}

// AppliedMigration records one executed upgrade step
type AppliedMigration struct {
	Key         string    `json:"key"`
	FromVersion int       `json:"from_version"`
	ToVersion   int       `json:"to_version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Evolution upgrades stored snapshot payloads to the current schema.
// Steps are registered per logical key and applied one version at a
// time, so a v1 payload read by a v3 binary passes through v2 first.
type Evolution struct {
	migrations map[string][]Migration
	history    []AppliedMigration
	logger     *zap.Logger
}

// NewEvolution creates an empty migration registry
func NewEvolution(logger *zap.Logger) *Evolution {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evolution{
		migrations: make(map[string][]Migration),
		history:    []AppliedMigration{},
		logger:     logger,
	}
}

// Register adds a migration step. Steps must move exactly one version
// forward and may not collide with an already registered step.
func (e *Evolution) Register(migration Migration) error {
	if migration.Key == "" {
		return fmt.Errorf("migration key required")
	}
	if migration.ToVersion != migration.FromVersion+1 {
		return fmt.Errorf("migration %s %d->%d must advance exactly one version",
			migration.Key, migration.FromVersion, migration.ToVersion)
	}
	if migration.Apply == nil {
		return fmt.Errorf("migration %s %d->%d has no apply function",
			migration.Key, migration.FromVersion, migration.ToVersion)
	}

	for _, existing := range e.migrations[migration.Key] {
		if existing.FromVersion == migration.FromVersion {
			return fmt.Errorf("migration %s %d->%d already registered",
				migration.Key, migration.FromVersion, migration.ToVersion)
		}
	}

	e.migrations[migration.Key] = append(e.migrations[migration.Key], migration)
	sort.Slice(e.migrations[migration.Key], func(i, j int) bool {
		return e.migrations[migration.Key][i].FromVersion < e.migrations[migration.Key][j].FromVersion
	})
	return nil
}

// CanUpgrade reports whether an unbroken chain of steps leads from one
// version to another
func (e *Evolution) CanUpgrade(key string, from, to int) bool {
	for version := from; version < to; version++ {
		if e.find(key, version) == nil {
			return false
		}
	}
	return true
}

// Upgrade walks a payload from its stored version to the target
// version, applying each registered step in order
func (e *Evolution) Upgrade(key string, payload []byte, from, to int) ([]byte, error) {
	if from == to {
		return payload, nil
	}
	if from > to {
		return nil, fmt.Errorf("cannot downgrade %s from schema v%d to v%d", key, from, to)
	}

	current := payload
	for version := from; version < to; version++ {
		migration := e.find(key, version)
		if migration == nil {
			return nil, fmt.Errorf("no migration for %s from schema v%d to v%d", key, version, version+1)
		}

		upgraded, err := migration.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("migration %s v%d->v%d failed: %w",
				key, migration.FromVersion, migration.ToVersion, err)
		}
		current = upgraded

		e.history = append(e.history, AppliedMigration{
			Key:         key,
			FromVersion: migration.FromVersion,
			ToVersion:   migration.ToVersion,
			Description: migration.Description,
			AppliedAt:   time.Now(),
		})
		e.logger.Info("Snapshot payload migrated",
			zap.String("key", key),
			zap.Int("fromVersion", migration.FromVersion),
			zap.Int("toVersion", migration.ToVersion),
		)
	}
	return current, nil
}

// History returns the executed upgrade steps in order
func (e *Evolution) History() []AppliedMigration {
	history := make([]AppliedMigration, len(e.history))
	copy(history, e.history)
	return history
}

func (e *Evolution) find(key string, from int) *Migration {
	for i := range e.migrations[key] {
		if e.migrations[key][i].FromVersion == from {
			return &e.migrations[key][i]
		}
	}
	return nil
}

// DefaultEvolution returns the registry with every known migration
func DefaultEvolution(logger *zap.Logger) *Evolution {
	evolution := NewEvolution(logger)

	// Registration only fails on programmer error, so panic loudly
	for _, migration := range []Migration{
		{
			Key:         ports.KeyCanvasSnapshot,
			FromVersion: VersionLegacy,
			ToVersion:   VersionCurrent,
			Description: "nest the flat container list into a tree",
			Apply:       upgradeCanvasV1,
		},
		{
			Key:         ports.KeyGraphsCollection,
			FromVersion: VersionLegacy,
			ToVersion:   VersionCurrent,
			Description: "default missing graph generations to 1",
			Apply:       upgradeGraphsV1,
		},
		{
			Key:         ports.KeyEngineSession,
			FromVersion: VersionLegacy,
			ToVersion:   VersionCurrent,
			Description: "rename the navigation path field",
			Apply:       upgradeSessionV1,
		},
	} {
		if err := evolution.Register(migration); err != nil {
			panic(fmt.Sprintf("schema: %v", err))
		}
	}
	return evolution
}

// upgradeCanvasV1 nests a v1 flat container list into the v2 tree
// shape. V1 containers carry no bound graph link; the field stays empty
// and the legacy migration pairs them after loading.
func upgradeCanvasV1(payload []byte) ([]byte, error) {
	var flat []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("v1 canvas payload is not a container list: %w", err)
	}

	type node struct {
		record   map[string]json.RawMessage
		children []*node
	}

	byID := make(map[string]*node, len(flat))
	order := make([]*node, 0, len(flat))
	for _, record := range flat {
		id, err := stringField(record, "id")
		if err != nil {
			return nil, err
		}
		n := &node{record: record}
		byID[id] = n
		order = append(order, n)
	}

	var root *node
	for _, n := range order {
		kind, _ := stringField(n.record, "kind")
		if kind == "root" {
			root = n
			break
		}
	}

	detached := []*node{}
	for _, n := range order {
		if n == root {
			continue
		}
		parentID, _ := stringField(n.record, "parent_id")
		if parentID == "" {
			if root == nil {
				root = n
				continue
			}
			detached = append(detached, n)
			continue
		}
		parent, ok := byID[parentID]
		if !ok {
			detached = append(detached, n)
			continue
		}
		parent.children = append(parent.children, n)
	}
	if root == nil {
		return nil, fmt.Errorf("v1 canvas payload has no root container")
	}

	var build func(n *node) map[string]interface{}
	build = func(n *node) map[string]interface{} {
		out := make(map[string]interface{}, len(n.record)+1)
		for field, raw := range n.record {
			out[field] = raw
		}
		if len(n.children) > 0 {
			children := make([]map[string]interface{}, len(n.children))
			for i, child := range n.children {
				children[i] = build(child)
			}
			out["children"] = children
		}
		return out
	}

	upgraded := map[string]interface{}{"root": build(root)}
	if len(detached) > 0 {
		stray := make([]map[string]interface{}, len(detached))
		for i, n := range detached {
			stray[i] = build(n)
		}
		upgraded["detached"] = stray
	}
	return json.Marshal(upgraded)
}

// upgradeGraphsV1 gives v1 graph records the generation field. V1
// predates container binding, so every stored graph sits at the base
// generation; scopes stay absent for the legacy migration to fill in.
func upgradeGraphsV1(payload []byte) ([]byte, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("v1 graphs payload is not a graph list: %w", err)
	}

	upgraded := make([]map[string]interface{}, len(records))
	for i, record := range records {
		out := make(map[string]interface{}, len(record)+1)
		for field, raw := range record {
			out[field] = raw
		}
		if _, ok := record["generation"]; !ok {
			out["generation"] = 1
		}
		upgraded[i] = out
	}
	return json.Marshal(upgraded)
}

// upgradeSessionV1 renames the v1 "path" field to "active_path"
func upgradeSessionV1(payload []byte) ([]byte, error) {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("v1 session payload is not a record: %w", err)
	}

	if path, ok := record["path"]; ok {
		record["active_path"] = path
		delete(record, "path")
	}
	return json.Marshal(record)
}

func stringField(record map[string]json.RawMessage, field string) (string, error) {
	raw, ok := record[field]
	if !ok {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("field %q is not a string: %w", field, err)
	}
	return value, nil
}
