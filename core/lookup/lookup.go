// Package lookup loads the resource to conversion factor table.
package lookup

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

// Column names of the lookup CSV.
const (
	ColumnResource   = "Resource"
	ColumnConversion = "Conversion"
)

// Load reads the lookup table from a CSV file.
func Load(path string) (types.ResourceLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Parsing("failed to open resource lookup", err).WithContext("path", path)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.WithContext("path", path)
		}
		return nil, err
	}
	return l, nil
}

// Parse reads a lookup CSV with Resource and Conversion columns. A resource
// listed more than once is an error: the table must be unambiguous.
func Parse(r io.Reader) (types.ResourceLookup, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.Parsing("resource lookup is empty", nil)
		}
		return nil, errors.Parsing("failed to read resource lookup header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	resIdx, convIdx := -1, -1
	for i, name := range header {
		switch name {
		case ColumnResource:
			resIdx = i
		case ColumnConversion:
			convIdx = i
		}
	}
	if resIdx < 0 || convIdx < 0 {
		return nil, errors.Parsing(fmt.Sprintf("resource lookup needs %s and %s columns", ColumnResource, ColumnConversion), nil)
	}

	table := make(types.ResourceLookup)
	seen := make(map[string]int)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Parsing("malformed resource lookup row", err)
		}

		resource := strings.TrimSpace(record[resIdx])
		raw := strings.TrimSpace(record[convIdx])
		seen[resource]++
		if raw == "" {
			// Listed without a factor: treated as unmapped.
			continue
		}
		conv, err := decimal.NewFromString(raw)
		if err != nil {
			line, _ := cr.FieldPos(convIdx)
			return nil, errors.Parsing(fmt.Sprintf("invalid conversion %q for %s", raw, resource), err).
				WithContext("line", line)
		}
		table[resource] = conv
	}

	var dups []string
	for resource, n := range seen {
		if n > 1 {
			dups = append(dups, resource)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, errors.Parsing("resource lookup lists resources more than once", nil).
			WithContext("duplicates", dups)
	}
	return table, nil
}
