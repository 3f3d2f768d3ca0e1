package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("unexpected EOF")
	err := Transfer("download reports/usage-csv/0001.csv.gz", cause)

	assert.Equal(t, "[TRANSFER_ERROR] download reports/usage-csv/0001.csv.gz: unexpected EOF", err.Error())
	assert.Equal(t, "[CONFIG_ERROR] bucket is required", Config("bucket is required").Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsTypeWalksWrapChain(t *testing.T) {
	inner := RateQuery("metering API returned status 401", nil)
	wrapped := fmt.Errorf("report 0001.csv.gz: %w", inner)

	assert.True(t, IsType(wrapped, TypeRateQuery))
	assert.False(t, IsType(wrapped, TypeParsing))
	assert.False(t, IsType(stderrors.New("plain"), TypeRateQuery))
	assert.Equal(t, TypeRateQuery, TypeOf(wrapped))
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("plain")))
}

func TestFatal(t *testing.T) {
	tests := []struct {
		err   *Error
		fatal bool
	}{
		{Transfer("x", nil), true},
		{Parsing("x", nil), true},
		{RateQuery("x", nil), true},
		{Write("x", nil), true},
		{Progress("x", nil), true},
		{DataQuality("2 rows missing conversion"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.err.Fatal())
		})
	}
}

func TestWithContext(t *testing.T) {
	err := Parsing("bad row", nil).WithContext("line", 12).WithContext("report", "0001.csv")
	assert.Equal(t, 12, err.Context["line"])
	assert.Equal(t, "0001.csv", err.Context["report"])
}
