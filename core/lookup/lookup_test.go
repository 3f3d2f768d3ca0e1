package lookup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/internal/errors"
)

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader("Resource,Conversion,Notes\nA,2,compute\nB,0.001,storage GB to TB\nC,,new sku\n"))
	require.NoError(t, err)

	a, ok := table.Conversion("A")
	require.True(t, ok)
	assert.True(t, a.Equal(decimal.NewFromInt(2)))

	b, ok := table.Conversion("B")
	require.True(t, ok)
	assert.True(t, b.Equal(decimal.RequireFromString("0.001")))

	_, ok = table.Conversion("C")
	assert.False(t, ok, "a blank factor leaves the resource unmapped")
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse(strings.NewReader("Resource,Conversion\nA,2\nB,1\nA,3\n"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeParsing))

	e := err.(*errors.Error)
	assert.Equal(t, []string{"A"}, e.Context["duplicates"])
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"empty":           "",
		"missing columns": "Resource,Factor\nA,2\n",
		"bad factor":      "Resource,Conversion\nA,two\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeParsing))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ResourceLookup.csv")
	require.NoError(t, os.WriteFile(path, []byte("Resource,Conversion\nA,2\n"), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, table, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
