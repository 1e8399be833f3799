package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"branchdesk/pkg/cache"

	log "github.com/sirupsen/logrus"
)

const DefaultConfigTable = "Config"

const configNameColumn = "Sheetname"

type Capability string

const (
	Searchable Capability = "searchable"
	Enterable  Capability = "enterable"
	Viewable   Capability = "viewable"
)

// flag columns follow the Sheetname column in this order
var capabilityOrder = []Capability{Searchable, Enterable, Viewable}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(capabilityOrder, c) {
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Capabilities lists, per capability, the tables taking part in it in
// Config table order.
type Capabilities map[Capability][]string

func (c Capabilities) Allows(table string, capability Capability) bool {
	return slices.Contains(c[capability], table)
}

// Capabilities reads the Config table. Rows naming a table that does not
// exist in the spreadsheet are skipped.
func (s *Store) Capabilities(ctx context.Context) (Capabilities, error) {
	produce := func() (Capabilities, error) {
		header, rows, err := s.gateway.ReadAll(ctx, s.configTable)
		if err != nil {
			return nil, err
		}
		existing, err := s.gateway.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		return parseConfig(header, rows, existing)
	}
	probe := func() (int, error) {
		return s.gateway.RowCount(ctx, s.configTable)
	}
	return s.capabilities.Get(cache.Key{Table: s.configTable}, produce, probe)
}

// Allowed reports whether table takes part in capability.
func (s *Store) Allowed(ctx context.Context, table string, capability Capability) (bool, error) {
	caps, err := s.Capabilities(ctx)
	if err != nil {
		return false, err
	}
	return caps.Allows(table, capability), nil
}

func parseConfig(header []string, rows [][]string, existing []string) (Capabilities, error) {
	nameCol := -1
	for i, cell := range header {
		if strings.EqualFold(strings.TrimSpace(cell), configNameColumn) {
			nameCol = i
			break
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("config table has no %s column", configNameColumn)
	}

	caps := Capabilities{}
	for _, row := range rows {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		if !slices.Contains(existing, name) {
			log.WithField("table", name).Warn("config names a table that does not exist")
			continue
		}
		for i, capability := range capabilityOrder {
			col := nameCol + 1 + i
			if col < len(row) && strings.TrimSpace(row[col]) == "1" {
				caps[capability] = append(caps[capability], name)
			}
		}
	}
	return caps, nil
}
