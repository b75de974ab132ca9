package output

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, map[string]int{"entries": 3}))
	assert.Equal(t, "{\n  \"entries\": 3\n}\n", buf.String())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tw := Table(&buf)
	fmt.Fprintln(tw, "FILE\tENTRIES")
	fmt.Fprintln(tw, "a.trace\t3")
	require.NoError(t, tw.Flush())
	assert.Equal(t, "FILE     ENTRIES\na.trace  3\n", buf.String())
}

func TestWarn(t *testing.T) {
	var buf bytes.Buffer
	Warn(&buf, "%d skipped", 2)
	assert.Equal(t, "Warning: 2 skipped\n", buf.String())
}
