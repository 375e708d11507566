package model

import (
	"errors"
	"strings"
)

// Groups is the allow-list of audience groups, loaded once from configuration.
type Groups struct {
	names   []string
	allowed map[string]struct{}
}

// NewGroups builds the allow-list. Names are trimmed; blanks and duplicates are rejected.
func NewGroups(names []string) (*Groups, error) {
	g := &Groups{allowed: make(map[string]struct{}, len(names))}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, errors.New("group name must not be blank")
		}
		if _, dup := g.allowed[name]; dup {
			return nil, errors.New("duplicate group name: " + name)
		}
		g.allowed[name] = struct{}{}
		g.names = append(g.names, name)
	}
	if len(g.names) == 0 {
		return nil, errors.New("at least one group is required")
	}
	return g, nil
}

// Contains reports whether name is an allowed group.
func (g *Groups) Contains(name string) bool {
	_, ok := g.allowed[name]
	return ok
}

// Unknown returns the entries of names that are not allowed, in input order.
func (g *Groups) Unknown(names []string) []string {
	var unknown []string
	for _, n := range names {
		if !g.Contains(n) {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// Names returns the allowed groups in configuration order.
func (g *Groups) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// SplitGroups parses a comma-separated list, trimming blanks.
func SplitGroups(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
