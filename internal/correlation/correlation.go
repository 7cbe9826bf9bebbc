// Package correlation builds co-occurrence matrices over boolean record flags.
//
// The matrix value for a pair of flags is the share of all records where both
// flags are true. It is a co-occurrence rate, not a correlation coefficient;
// the diagonal therefore holds each flag's own true rate.
package correlation

import (
	"github.com/Veraticus/draftflow/internal/model"
)

// Flagged is satisfied by record pointers that expose named boolean flags.
type Flagged[T any] interface {
	*T
	Flag(name string) bool
}

// Correlate returns the full len(flags)² matrix in row-major order: the cell
// for (flags[i], flags[j]) is at index i*len(flags)+j. Every value is 0 when
// records is empty.
func Correlate[T any, P Flagged[T]](records []T, flags []string) []model.CorrelationCell {
	n := len(flags)
	both := make([][]int, n)
	for i := range both {
		both[i] = make([]int, n)
	}

	set := make([]bool, n)
	for r := range records {
		p := P(&records[r])
		for i, f := range flags {
			set[i] = p.Flag(f)
		}
		for i := 0; i < n; i++ {
			if !set[i] {
				continue
			}
			for j := 0; j < n; j++ {
				if set[j] {
					both[i][j]++
				}
			}
		}
	}

	total := len(records)
	cells := make([]model.CorrelationCell, 0, n*n)
	for i, x := range flags {
		for j, y := range flags {
			var v float64
			if total > 0 {
				v = float64(both[i][j]) / float64(total)
			}
			cells = append(cells, model.CorrelationCell{X: x, Y: y, Value: v})
		}
	}
	return cells
}

// Matrix reshapes cells produced by Correlate into rows indexed like flags.
func Matrix(cells []model.CorrelationCell, flags []string) [][]float64 {
	n := len(flags)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if k := i*n + j; k < len(cells) {
				out[i][j] = cells[k].Value
			}
		}
	}
	return out
}

// TrueRate returns the share of records where flag is true.
func TrueRate[T any, P Flagged[T]](records []T, flag string) float64 {
	if len(records) == 0 {
		return 0
	}
	count := 0
	for r := range records {
		if P(&records[r]).Flag(flag) {
			count++
		}
	}
	return float64(count) / float64(len(records))
}
