package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Hierarchy constraints
	MaxNestingDepth         int
	MaxChildrenPerContainer int
	MaxElementsPerContainer int
	DefaultRootName         string

	// Graph constraints
	MaxNodesPerGraph int
	DefaultGraphName string
	GeneralGraphName string

	// Naming and content constraints
	MinNameLength    int
	MaxNameLength    int
	MaxTitleLength   int
	MaxContentLength int

	// Time constraints
	SessionTimeout    time.Duration
	ConnectionTimeout time.Duration

	// Validation settings
	AllowEmptyContent         bool
	RequireUniqueSiblingNames bool

	// Feature flags
	EnableAutoRepair      bool
	EnableLegacyMigration bool
	EnableRealTimeSync    bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Hierarchy constraints
		MaxNestingDepth:         16,
		MaxChildrenPerContainer: 200,
		MaxElementsPerContainer: 500,
		DefaultRootName:         "Root",

		// Graph constraints
		MaxNodesPerGraph: 10000,
		DefaultGraphName: "Untitled Graph",
		GeneralGraphName: "General Graph",

		// Naming and content constraints
		MinNameLength:    1,
		MaxNameLength:    200,
		MaxTitleLength:   200,
		MaxContentLength: 50000,

		// Time constraints
		SessionTimeout:    24 * time.Hour,
		ConnectionTimeout: 30 * time.Second,

		// Validation settings
		AllowEmptyContent:         false,
		RequireUniqueSiblingNames: false,

		// Feature flags
		EnableAutoRepair:      true,
		EnableLegacyMigration: true,
		EnableRealTimeSync:    true,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More restrictive limits for production
	config.MaxNestingDepth = 8
	config.MaxChildrenPerContainer = 100
	config.MaxElementsPerContainer = 200
	config.MaxNodesPerGraph = 5000
	config.MaxContentLength = 20000

	// Stricter validation
	config.AllowEmptyContent = false
	config.RequireUniqueSiblingNames = true

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More permissive for development
	config.MaxNestingDepth = 64
	config.MaxChildrenPerContainer = 1000
	config.MaxElementsPerContainer = 2000
	config.MaxNodesPerGraph = 100000
	config.AllowEmptyContent = true

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxNestingDepth < 1 {
		return fmt.Errorf("max nesting depth must be at least 1, got %d", c.MaxNestingDepth)
	}
	if c.MaxChildrenPerContainer < 1 {
		return fmt.Errorf("max children per container must be at least 1, got %d", c.MaxChildrenPerContainer)
	}
	if c.MaxElementsPerContainer < 1 {
		return fmt.Errorf("max elements per container must be at least 1, got %d", c.MaxElementsPerContainer)
	}
	if c.MaxNodesPerGraph < 1 {
		return fmt.Errorf("max nodes per graph must be at least 1, got %d", c.MaxNodesPerGraph)
	}
	if c.MinNameLength < 0 || c.MinNameLength > c.MaxNameLength {
		return fmt.Errorf("name length bounds are inconsistent: min %d, max %d", c.MinNameLength, c.MaxNameLength)
	}
	if c.MaxTitleLength < 1 {
		return fmt.Errorf("max title length must be at least 1, got %d", c.MaxTitleLength)
	}
	if c.MaxContentLength < 1 {
		return fmt.Errorf("max content length must be at least 1, got %d", c.MaxContentLength)
	}
	return nil
}
