package config

import (
	"fmt"
	"os"

	domaincfg "github.com/PRicaldone/atelier-sub003/domain/config"
	"gopkg.in/yaml.v3"
)

// DomainRules is the tunable subset of the domain rules, loaded from a
// YAML file. Absent keys keep the value of the environment profile, so
// a rules file only needs to name what it changes.
type DomainRules struct {
	Hierarchy struct {
		MaxNestingDepth         int    `yaml:"max_nesting_depth"`
		MaxChildrenPerContainer int    `yaml:"max_children_per_container"`
		MaxElementsPerContainer int    `yaml:"max_elements_per_container"`
		DefaultRootName         string `yaml:"default_root_name"`
	} `yaml:"hierarchy"`

	Graphs struct {
		MaxNodesPerGraph int    `yaml:"max_nodes_per_graph"`
		DefaultGraphName string `yaml:"default_graph_name"`
		GeneralGraphName string `yaml:"general_graph_name"`
	} `yaml:"graphs"`

	Naming struct {
		MinNameLength    *int `yaml:"min_name_length"`
		MaxNameLength    int  `yaml:"max_name_length"`
		MaxTitleLength   int  `yaml:"max_title_length"`
		MaxContentLength int  `yaml:"max_content_length"`
	} `yaml:"naming"`

	Validation struct {
		AllowEmptyContent         *bool `yaml:"allow_empty_content"`
		RequireUniqueSiblingNames *bool `yaml:"require_unique_sibling_names"`
	} `yaml:"validation"`

	Features struct {
		EnableAutoRepair      *bool `yaml:"enable_auto_repair"`
		EnableLegacyMigration *bool `yaml:"enable_legacy_migration"`
		EnableRealTimeSync    *bool `yaml:"enable_real_time_sync"`
	} `yaml:"features"`
}

// LoadRules reads and parses a domain rules file
func LoadRules(path string) (*DomainRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules DomainRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return &rules, nil
}

// Apply overlays the rules on a baseline configuration and returns the
// merged result. The baseline is not modified.
func (r *DomainRules) Apply(base *domaincfg.DomainConfig) *domaincfg.DomainConfig {
	merged := *base

	if r.Hierarchy.MaxNestingDepth > 0 {
		merged.MaxNestingDepth = r.Hierarchy.MaxNestingDepth
	}
	if r.Hierarchy.MaxChildrenPerContainer > 0 {
		merged.MaxChildrenPerContainer = r.Hierarchy.MaxChildrenPerContainer
	}
	if r.Hierarchy.MaxElementsPerContainer > 0 {
		merged.MaxElementsPerContainer = r.Hierarchy.MaxElementsPerContainer
	}
	if r.Hierarchy.DefaultRootName != "" {
		merged.DefaultRootName = r.Hierarchy.DefaultRootName
	}

	if r.Graphs.MaxNodesPerGraph > 0 {
		merged.MaxNodesPerGraph = r.Graphs.MaxNodesPerGraph
	}
	if r.Graphs.DefaultGraphName != "" {
		merged.DefaultGraphName = r.Graphs.DefaultGraphName
	}
	if r.Graphs.GeneralGraphName != "" {
		merged.GeneralGraphName = r.Graphs.GeneralGraphName
	}

	if r.Naming.MinNameLength != nil {
		merged.MinNameLength = *r.Naming.MinNameLength
	}
	if r.Naming.MaxNameLength > 0 {
		merged.MaxNameLength = r.Naming.MaxNameLength
	}
	if r.Naming.MaxTitleLength > 0 {
		merged.MaxTitleLength = r.Naming.MaxTitleLength
	}
	if r.Naming.MaxContentLength > 0 {
		merged.MaxContentLength = r.Naming.MaxContentLength
	}

	if r.Validation.AllowEmptyContent != nil {
		merged.AllowEmptyContent = *r.Validation.AllowEmptyContent
	}
	if r.Validation.RequireUniqueSiblingNames != nil {
		merged.RequireUniqueSiblingNames = *r.Validation.RequireUniqueSiblingNames
	}

	if r.Features.EnableAutoRepair != nil {
		merged.EnableAutoRepair = *r.Features.EnableAutoRepair
	}
	if r.Features.EnableLegacyMigration != nil {
		merged.EnableLegacyMigration = *r.Features.EnableLegacyMigration
	}
	if r.Features.EnableRealTimeSync != nil {
		merged.EnableRealTimeSync = *r.Features.EnableRealTimeSync
	}

	return &merged
}
