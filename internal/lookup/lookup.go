package lookup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const DefaultProduct = "Coloridas"

// Rule maps one raw identifier to a product. A nil Product marks the
// identifier as not to be classified.
type Rule struct {
	Match   string  `json:"match"`
	Product *string `json:"produto"`
}

type RuleSet struct {
	Default string `json:"default"`
	Rules   []Rule `json:"regras"`
}

// Mapper resolves raw supplier identifiers to canonical products. It is
// read-only after construction.
type Mapper struct {
	def   string
	rules []Rule
	byKey map[string]*string
}

func New(set RuleSet) *Mapper {
	m := &Mapper{def: strings.TrimSpace(set.Default), byKey: map[string]*string{}}
	if m.def == "" {
		m.def = DefaultProduct
	}
	for _, r := range set.Rules {
		if r.Match == "" {
			continue
		}
		if _, dup := m.byKey[r.Match]; dup {
			continue
		}
		m.byKey[r.Match] = r.Product
		m.rules = append(m.rules, r)
	}
	return m
}

// Load reads a rule file. A missing or malformed file yields an empty rule
// set with the "Coloridas" default, so parsing still proceeds.
func Load(path string, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	set, err := readRuleSet(path)
	if err != nil {
		logger.Warn("lookup rules unavailable, using default only", "path", path, "default", DefaultProduct, "error", err)
		return New(RuleSet{Default: DefaultProduct})
	}
	return New(set)
}

func readRuleSet(path string) (RuleSet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, err
	}
	var set RuleSet
	if err := json.Unmarshal(blob, &set); err != nil {
		return RuleSet{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return set, nil
}

// Resolve returns ok=false for a nil identifier or one mapped to null: the
// caller skips the line.
func (m *Mapper) Resolve(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	if product, hit := m.byKey[strings.TrimSpace(*raw)]; hit {
		if product == nil {
			return "", false
		}
		return *product, true
	}
	return m.def, true
}

func (m *Mapper) Default() string {
	return m.def
}

func (m *Mapper) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}
