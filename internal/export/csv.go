// Package export reads and writes project snapshots as CSV files.
//
// A project exports to {PROJECT}_HIERARCHY.csv (one row per node) and
// {PROJECT}_HIERARCHY_MAPPING.csv (one row per source mapping), plus
// {PROJECT}_FILTER_GROUP.csv when shared filter groups exist. Scalar fields
// occupy plain columns; nested shapes (levels, formulas, filters, join keys)
// are carried as JSON so a written snapshot reads back exactly.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/treeline-data/treeline/internal/model"
)

// HierarchyFileName returns the hierarchy CSV file name for a project.
func HierarchyFileName(project string) string {
	return sanitize(project) + "_HIERARCHY.csv"
}

// MappingFileName returns the mapping CSV file name for a project.
func MappingFileName(project string) string {
	return sanitize(project) + "_HIERARCHY_MAPPING.csv"
}

// GroupFileName returns the filter-group CSV file name for a project.
func GroupFileName(project string) string {
	return sanitize(project) + "_FILTER_GROUP.csv"
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

var hierarchyHeader = []string{
	"id", "parent_id", "name", "description", "levels",
	"include", "exclude", "is_calculation", "sign_change", "is_leaf", "active",
	"custom_flags", "formula", "filter", "pivot",
}

var mappingHeader = []string{
	"node_id", "index", "database", "schema", "table", "column", "uid",
	"join_type", "system_type", "dimension_role", "precedence_group",
	"join_keys", "include", "exclude", "transform", "active",
}

var groupHeader = []string{"id", "name", "conditions", "raw_sql"}

// WriteSnapshot writes a snapshot to dir using the project naming convention
// and returns the paths written. Nodes are written in sorted ID order so two
// exports of the same snapshot are byte-identical.
func WriteSnapshot(dir string, snap model.Snapshot) ([]string, error) {
	if snap.Project == "" {
		return nil, fmt.Errorf("snapshot has no project name")
	}

	nodes := make([]model.HierarchyNode, len(snap.Nodes))
	copy(nodes, snap.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	hierPath := filepath.Join(dir, HierarchyFileName(snap.Project))
	if err := writeFile(hierPath, func(w *csv.Writer) error {
		return writeHierarchy(w, nodes)
	}); err != nil {
		return nil, err
	}
	paths := []string{hierPath}

	mapPath := filepath.Join(dir, MappingFileName(snap.Project))
	if err := writeFile(mapPath, func(w *csv.Writer) error {
		return writeMappings(w, nodes)
	}); err != nil {
		return nil, err
	}
	paths = append(paths, mapPath)

	if len(snap.Groups) > 0 {
		groups := make([]model.FilterGroup, len(snap.Groups))
		copy(groups, snap.Groups)
		sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

		groupPath := filepath.Join(dir, GroupFileName(snap.Project))
		if err := writeFile(groupPath, func(w *csv.Writer) error {
			return writeGroups(w, groups)
		}); err != nil {
			return nil, err
		}
		paths = append(paths, groupPath)
	}

	return paths, nil
}

// ReadSnapshot reads a snapshot previously written with WriteSnapshot. The
// filter-group file is optional.
func ReadSnapshot(dir, project string) (model.Snapshot, error) {
	snap := model.Snapshot{Project: project}

	nodes, err := readFile(filepath.Join(dir, HierarchyFileName(project)), readHierarchy)
	if err != nil {
		return snap, err
	}
	byID := make(map[string]*model.HierarchyNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	mappings, err := readFile(filepath.Join(dir, MappingFileName(project)), readMappings)
	if err != nil {
		return snap, err
	}
	for _, m := range mappings {
		n, ok := byID[m.nodeID]
		if !ok {
			return snap, fmt.Errorf("mapping references unknown node %q", m.nodeID)
		}
		n.Mappings = append(n.Mappings, m.mapping)
	}

	groupPath := filepath.Join(dir, GroupFileName(project))
	if _, statErr := os.Stat(groupPath); statErr == nil {
		groups, err := readFile(groupPath, readGroups)
		if err != nil {
			return snap, err
		}
		snap.Groups = groups
	}

	snap.Nodes = nodes
	return snap, nil
}

func writeFile(path string, fn func(w *csv.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // path is derived from the user-provided export dir
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := fn(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func readFile[T any](path string, fn func(r *csv.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path) //nolint:gosec // path is derived from the user-provided import dir
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := fn(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

func writeHierarchy(w *csv.Writer, nodes []model.HierarchyNode) error {
	if err := w.Write(hierarchyHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		levels, err := jsonColumn(n.Levels, len(n.Levels) > 0)
		if err != nil {
			return err
		}
		custom, err := jsonColumn(n.Flags.Custom, len(n.Flags.Custom) > 0)
		if err != nil {
			return err
		}
		formula, err := jsonColumn(n.Formula, n.Formula != nil)
		if err != nil {
			return err
		}
		filter, err := jsonColumn(n.Filter, n.Filter != nil)
		if err != nil {
			return err
		}
		pivot, err := jsonColumn(n.Pivot, n.Pivot != nil)
		if err != nil {
			return err
		}

		row := []string{
			n.ID, n.ParentID, n.Name, n.Description, levels,
			boolCell(n.Flags.Include), boolCell(n.Flags.Exclude),
			boolCell(n.Flags.IsCalculation), boolCell(n.Flags.SignChange),
			boolCell(n.Flags.IsLeaf), boolCell(n.Flags.Active),
			custom, formula, filter, pivot,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func readHierarchy(r *csv.Reader) ([]model.HierarchyNode, error) {
	if err := checkHeader(r, hierarchyHeader); err != nil {
		return nil, err
	}

	var nodes []model.HierarchyNode
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		n := model.HierarchyNode{
			ID:          row[0],
			ParentID:    row[1],
			Name:        row[2],
			Description: row[3],
		}
		if err := parseJSONColumn(row[4], &n.Levels); err != nil {
			return nil, fmt.Errorf("node %s: bad levels: %w", n.ID, err)
		}
		for i, dst := range []*bool{
			&n.Flags.Include, &n.Flags.Exclude, &n.Flags.IsCalculation,
			&n.Flags.SignChange, &n.Flags.IsLeaf, &n.Flags.Active,
		} {
			v, err := parseBoolCell(row[5+i])
			if err != nil {
				return nil, fmt.Errorf("node %s: column %s: %w", n.ID, hierarchyHeader[5+i], err)
			}
			*dst = v
		}
		if err := parseJSONColumn(row[11], &n.Flags.Custom); err != nil {
			return nil, fmt.Errorf("node %s: bad custom_flags: %w", n.ID, err)
		}
		if err := parseJSONColumn(row[12], &n.Formula); err != nil {
			return nil, fmt.Errorf("node %s: bad formula: %w", n.ID, err)
		}
		if err := parseJSONColumn(row[13], &n.Filter); err != nil {
			return nil, fmt.Errorf("node %s: bad filter: %w", n.ID, err)
		}
		if err := parseJSONColumn(row[14], &n.Pivot); err != nil {
			return nil, fmt.Errorf("node %s: bad pivot: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func writeMappings(w *csv.Writer, nodes []model.HierarchyNode) error {
	if err := w.Write(mappingHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		for _, m := range n.Mappings {
			keys, err := jsonColumn(m.JoinKeys, len(m.JoinKeys) > 0)
			if err != nil {
				return err
			}
			row := []string{
				n.ID, strconv.Itoa(m.Index),
				m.Database, m.Schema, m.Table, m.Column, m.UID,
				string(m.JoinType), string(m.SystemType), string(m.DimensionRole),
				m.PrecedenceGroup, keys,
				boolCell(m.Flags.Include), boolCell(m.Flags.Exclude),
				boolCell(m.Flags.Transform), boolCell(m.Flags.Active),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

type mappingRow struct {
	nodeID  string
	mapping model.SourceMapping
}

func readMappings(r *csv.Reader) ([]mappingRow, error) {
	if err := checkHeader(r, mappingHeader); err != nil {
		return nil, err
	}

	var rows []mappingRow
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		idx, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("node %s: bad mapping index %q", row[0], row[1])
		}
		m := model.SourceMapping{
			Index:           idx,
			Database:        row[2],
			Schema:          row[3],
			Table:           row[4],
			Column:          row[5],
			UID:             row[6],
			JoinType:        model.JoinType(row[7]),
			SystemType:      model.SystemType(row[8]),
			DimensionRole:   model.DimensionRole(row[9]),
			PrecedenceGroup: row[10],
		}
		if err := parseJSONColumn(row[11], &m.JoinKeys); err != nil {
			return nil, fmt.Errorf("node %s: bad join_keys: %w", row[0], err)
		}
		for i, dst := range []*bool{
			&m.Flags.Include, &m.Flags.Exclude, &m.Flags.Transform, &m.Flags.Active,
		} {
			v, err := parseBoolCell(row[12+i])
			if err != nil {
				return nil, fmt.Errorf("node %s: column %s: %w", row[0], mappingHeader[12+i], err)
			}
			*dst = v
		}
		rows = append(rows, mappingRow{nodeID: row[0], mapping: m})
	}
	return rows, nil
}

func writeGroups(w *csv.Writer, groups []model.FilterGroup) error {
	if err := w.Write(groupHeader); err != nil {
		return err
	}
	for _, g := range groups {
		conds, err := jsonColumn(g.Conditions, len(g.Conditions) > 0)
		if err != nil {
			return err
		}
		if err := w.Write([]string{g.ID, g.Name, conds, g.RawSQL}); err != nil {
			return err
		}
	}
	return nil
}

func readGroups(r *csv.Reader) ([]model.FilterGroup, error) {
	if err := checkHeader(r, groupHeader); err != nil {
		return nil, err
	}

	var groups []model.FilterGroup
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		g := model.FilterGroup{ID: row[0], Name: row[1], RawSQL: row[3]}
		if err := parseJSONColumn(row[2], &g.Conditions); err != nil {
			return nil, fmt.Errorf("group %s: bad conditions: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func checkHeader(r *csv.Reader, want []string) error {
	got, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if len(got) != len(want) {
		return fmt.Errorf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected column %q at position %d, got %q", want[i], i, got[i])
		}
	}
	return nil
}

// jsonColumn encodes v when present is true, else returns an empty cell.
func jsonColumn(v any, present bool) (string, error) {
	if !present {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseJSONColumn(cell string, dst any) error {
	if cell == "" {
		return nil
	}
	return json.Unmarshal([]byte(cell), dst)
}

func boolCell(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func parseBoolCell(cell string) (bool, error) {
	if cell == "" {
		return false, nil
	}
	return strconv.ParseBool(cell)
}
