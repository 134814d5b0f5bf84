package dataset

import (
	"fmt"

	"github.com/datalagoon/lagoon/pkg/catalog"
)

// selectedFile is one file surviving pruning, with the row groups to read
// (nil means the whole file) and the hive partitions to re-append.
type selectedFile struct {
	id         int64
	path       string
	rowGroups  []int
	partitions map[string]string
}

// pruneFiles applies partition-equality pruning and row-group min/max
// pruning. Pruning is a sound over-approximation: a file or row group is
// only dropped when its statistics prove no row can match.
func pruneFiles(
	files []catalog.FileEntry,
	partitionsByFile map[int64]map[string]string,
	rowGroupsByFile map[int64][]catalog.RowGroupStats,
	predicates []Predicate,
) ([]selectedFile, error) {
	selected := make([]selectedFile, 0, len(files))

	for _, entry := range files {
		partitions := partitionsByFile[entry.ID]

		if !partitionsMatch(partitions, predicates) {
			continue
		}

		rowGroups, err := filterRowGroups(rowGroupsByFile[entry.ID], predicates)
		if err != nil {
			return nil, err
		}
		if rowGroups != nil && len(rowGroups) == 0 {
			// Every row group is provably outside the predicates.
			continue
		}

		selected = append(selected, selectedFile{
			id:         entry.ID,
			path:       entry.FilePath,
			rowGroups:  rowGroups,
			partitions: partitions,
		})
	}
	return selected, nil
}

// partitionsMatch checks equality predicates against a file's partition
// values. Partition values are stored as text, so both sides are compared as
// strings; predicates on keys the file is not partitioned by never prune.
func partitionsMatch(partitions map[string]string, predicates []Predicate) bool {
	for _, predicate := range predicates {
		if predicate.Op != "==" {
			continue
		}
		actual, ok := partitions[predicate.Column]
		if !ok {
			continue
		}
		if actual != fmt.Sprintf("%v", predicate.Value) {
			return false
		}
	}
	return true
}

// filterRowGroups selects the row groups whose min/max bounds admit every
// predicate. A nil return means no selection applies (no predicates or no
// recorded statistics) and the whole file is read.
func filterRowGroups(rowGroups []catalog.RowGroupStats, predicates []Predicate) ([]int, error) {
	if len(predicates) == 0 || len(rowGroups) == 0 {
		return nil, nil
	}

	selected := make([]int, 0, len(rowGroups))
	for _, rowGroup := range rowGroups {
		matches := true
		for _, predicate := range predicates {
			ok, err := rowGroupMatches(rowGroup, predicate)
			if err != nil {
				return nil, err
			}
			if !ok {
				matches = false
				break
			}
		}
		if matches {
			selected = append(selected, rowGroup.Index)
		}
	}
	return selected, nil
}

// rowGroupMatches tests one predicate against a row group's [min, max]
// bounds. Missing bounds cannot prune and always match.
func rowGroupMatches(rowGroup catalog.RowGroupStats, predicate Predicate) (bool, error) {
	minValue, hasMin := rowGroup.Min[predicate.Column]
	maxValue, hasMax := rowGroup.Max[predicate.Column]
	if !hasMin || !hasMax || minValue == nil || maxValue == nil {
		return true, nil
	}

	minOrder, err := compareValues(minValue, predicate.Value)
	if err != nil {
		return true, nil // incomparable statistics cannot prune
	}
	maxOrder, err := compareValues(maxValue, predicate.Value)
	if err != nil {
		return true, nil
	}

	switch predicate.Op {
	case "==":
		return minOrder <= 0 && maxOrder >= 0, nil
	case ">":
		return maxOrder > 0, nil
	case ">=":
		return maxOrder >= 0, nil
	case "<":
		return minOrder < 0, nil
	case "<=":
		return minOrder <= 0, nil
	}
	return true, nil
}
