package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	table := Table{Headers: []string{"term", "balance"}}
	table.AddRow("Prelim", "0.00")
	table.AddRow("Midterm, 2nd", "2500.00")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	assert.Equal(t, "term,balance\nPrelim,0.00\n\"Midterm, 2nd\",2500.00\n", buf.String())
}

func TestWriteCSVRejectsMalformedTables(t *testing.T) {
	assert.Error(t, WriteCSV(&bytes.Buffer{}, Table{}))

	table := Table{Headers: []string{"term", "balance"}}
	table.AddRow("Prelim")
	assert.Error(t, WriteCSV(&bytes.Buffer{}, table))
}
