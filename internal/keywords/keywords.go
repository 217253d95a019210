// Package keywords parses interest-group rule files and matches titles against them.
//
// A rule file is a list of groups separated by blank lines:
//
//	# comment
//	[ai chips]
//	AI+chip
//	semiconductor
//	---
//	rumor
//
// The optional [name] line names the group. Each following line is one
// alternative; terms joined with "+" must all be present. Lines after the
// "---" marker are exclusion terms.
package keywords

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExclusionMarker separates required lines from exclusion terms inside a group.
const ExclusionMarker = "---"

// ErrNoGroups is returned when a rule file defines no group.
var ErrNoGroups = errors.New("no interest groups defined")

// Group is a named matching rule: OR of alternatives, each an AND of substrings.
type Group struct {
	Name         string
	Alternatives [][]string
	Exclude      []string
}

// Matches reports whether title satisfies at least one alternative and
// contains none of the exclusion terms. Matching is case-sensitive substring search.
func (g Group) Matches(title string) bool {
	for _, ex := range g.Exclude {
		if strings.Contains(title, ex) {
			return false
		}
	}
	for _, alt := range g.Alternatives {
		if containsAll(title, alt) {
			return true
		}
	}
	return false
}

func containsAll(title string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, term := range terms {
		if !strings.Contains(title, term) {
			return false
		}
	}
	return true
}

// LoadFile parses the rule file at path.
func LoadFile(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	groups, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return groups, nil
}

// Parse reads groups in declaration order.
func Parse(r io.Reader) ([]Group, error) {
	var (
		groups  []Group
		block   []string
		lineNo  int
		startAt int
	)

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		g, err := parseBlock(block)
		if err != nil {
			return fmt.Errorf("group at line %d: %w", startAt, err)
		}
		groups = append(groups, g)
		block = block[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			startAt = lineNo
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	return groups, nil
}

func parseBlock(lines []string) (Group, error) {
	var g Group
	if name, ok := headerName(lines[0]); ok {
		g.Name = name
		lines = lines[1:]
	}

	excluding := false
	var labels []string
	for _, line := range lines {
		if line == ExclusionMarker {
			if excluding {
				return Group{}, errors.New("duplicate exclusion marker")
			}
			excluding = true
			continue
		}
		if excluding {
			g.Exclude = append(g.Exclude, line)
			continue
		}

		var terms []string
		for _, term := range strings.Split(line, "+") {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) == 0 {
			continue
		}
		g.Alternatives = append(g.Alternatives, terms)
		labels = append(labels, strings.Join(terms, "+"))
	}

	if len(g.Alternatives) == 0 {
		return Group{}, errors.New("no required terms")
	}
	if g.Name == "" {
		g.Name = strings.Join(labels, " / ")
	}
	return g, nil
}

func headerName(line string) (string, bool) {
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	name := strings.TrimSpace(line[1 : len(line)-1])
	return name, name != ""
}
