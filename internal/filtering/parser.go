package filtering

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// Rule is one compiled pattern from a zone list.
type Rule struct {
	Pattern string
	matcher glob.Glob
}

// Match reports whether the zone name matches the rule.
func (r Rule) Match(zone string) bool {
	return r.matcher.Match(normalizeZone(zone))
}

// List is an ordered set of rules read from one file.
type List struct {
	Name  string
	Rules []Rule
}

// Len returns the number of rules in the list. A nil list is empty.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Rules)
}

// Match returns the first rule matching zone.
func (l *List) Match(zone string) (Rule, bool) {
	if l == nil {
		return Rule{}, false
	}
	for _, r := range l.Rules {
		if r.Match(zone) {
			return r, true
		}
	}
	return Rule{}, false
}

// Parser reads zone lists: one shell-style glob per line, with blank lines
// and # comments ignored.
type Parser struct {
	// IgnoreComments determines whether to skip comment lines.
	IgnoreComments bool
	// TrimWhitespace determines whether to trim whitespace from lines.
	TrimWhitespace bool
}

// NewParser creates a new parser with default settings.
func NewParser() *Parser {
	return &Parser{
		IgnoreComments: true,
		TrimWhitespace: true,
	}
}

// ParseFile parses a zone list file. The list is named after the file.
func (p *Parser) ParseFile(path string) (*List, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	list, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	list.Name = path
	return list, nil
}

// Parse parses a zone list from a reader.
func (p *Parser) Parse(r io.Reader) (*List, error) {
	list := &List{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if p.IgnoreComments {
			if idx := strings.Index(line, "#"); idx >= 0 {
				line = line[:idx]
			}
		}
		if p.TrimWhitespace {
			line = strings.TrimSpace(line)
		}
		if line == "" {
			continue
		}

		pattern := normalizeZone(line)
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid pattern %q: %w", lineno, line, err)
		}
		list.Rules = append(list.Rules, Rule{Pattern: pattern, matcher: g})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return list, nil
}

// ParsePatterns compiles patterns given directly rather than from a file.
func (p *Parser) ParsePatterns(name string, patterns []string) (*List, error) {
	list, err := p.Parse(strings.NewReader(strings.Join(patterns, "\n")))
	if err != nil {
		return nil, err
	}
	list.Name = name
	return list, nil
}

// normalizeZone lowercases a zone name and strips the trailing dot.
func normalizeZone(zone string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(zone)), ".")
}
