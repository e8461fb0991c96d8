package valueobjects

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// NodeContent is the text carried by a graph node. Both fields are
// trimmed on construction; the title may be empty only when the domain
// config allows untitled nodes.
type NodeContent struct {
	title string
	body  string
}

// NewNodeContent builds content validated against the default domain
// config.
func NewNodeContent(title, body string) (NodeContent, error) {
	return NewNodeContentWithConfig(title, body, config.DefaultDomainConfig())
}

// NewNodeContentWithConfig builds content validated against cfg.
func NewNodeContentWithConfig(title, body string, cfg *config.DomainConfig) (NodeContent, error) {
	content := ReconstructNodeContent(title, body)
	if err := content.Validate(cfg); err != nil {
		return NodeContent{}, err
	}
	return content, nil
}

// ReconstructNodeContent recreates content from raw text without rule
// checks, trimming only. Decode and transport paths build through it;
// graph mutations validate the result under the rules live at that
// moment.
func ReconstructNodeContent(title, body string) NodeContent {
	return NodeContent{
		title: strings.TrimSpace(title),
		body:  strings.TrimSpace(body),
	}
}

// Validate checks the content against cfg.
func (c NodeContent) Validate(cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if c.title == "" && !cfg.AllowEmptyContent {
		return pkgerrors.NewValidationError("node title cannot be empty")
	}
	if utf8.RuneCountInString(c.title) > cfg.MaxTitleLength {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("node title exceeds %d characters", cfg.MaxTitleLength))
	}
	if utf8.RuneCountInString(c.body) > cfg.MaxContentLength {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("node body exceeds %d characters", cfg.MaxContentLength))
	}
	return nil
}

// Title returns the node title, possibly empty for untitled nodes.
func (c NodeContent) Title() string {
	return c.title
}

// Body returns the node body.
func (c NodeContent) Body() string {
	return c.body
}

// DisplayName returns the title, or a name derived from the body when
// the node is untitled. Promotion uses it to name the elements it
// creates, so it never returns an empty string.
func (c NodeContent) DisplayName() string {
	if c.title != "" {
		return c.title
	}

	line := c.body
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "Untitled"
	}
	if runes := []rune(line); len(runes) > 80 {
		return string(runes[:80])
	}
	return line
}

// Equals reports whether both contents carry the same text.
func (c NodeContent) Equals(other NodeContent) bool {
	return c.title == other.title && c.body == other.body
}
