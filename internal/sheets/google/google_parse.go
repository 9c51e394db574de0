package google

import (
	"fmt"
	"strings"

	ports "mentorledger/internal/sheets"
)

// indexRows maps ledger ids in column A to their 1-based row numbers and
// returns the number of rows in use, header included.
func indexRows(values [][]interface{}) (map[string]int, int) {
	index := make(map[string]int, len(values))
	for i, row := range values {
		cols := toStrings(row)
		id := safeGet(cols, 0)
		if id == "" || isHeader(cols) {
			continue
		}
		index[id] = i + 1
	}
	return index, len(values)
}

// parseLedgerRows converts a values matrix into ledger rows, skipping the
// header and rows without an id.
func parseLedgerRows(values [][]interface{}) []ports.LedgerRow {
	var out []ports.LedgerRow
	for _, row := range values {
		cols := toStrings(row)
		if safeGet(cols, 0) == "" || isHeader(cols) {
			continue
		}
		out = append(out, ports.RowFromValues(cols))
	}
	return out
}

func isHeader(cols []string) bool {
	return indexOf(cols, ports.Header[0]) == 0
}

// columnName converts a 1-based column number to its A1 letters.
func columnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
