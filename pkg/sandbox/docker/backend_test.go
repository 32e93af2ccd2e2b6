package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	stdout := "noise from user code\n" + resultMarker + `{"output":"<p>hi</p>","console":["a","b"]}` + "\n"

	res, err := parseResult(stdout, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", res.Output)
	assert.Equal(t, []string{"a", "b"}, res.Console)
}

func TestParseResult_UsesLastMarker(t *testing.T) {
	stdout := resultMarker + `{"output":"fake"}` + "\n" + resultMarker + `{"output":"real"}`

	res, err := parseResult(stdout, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "real", res.Output)
}

func TestParseResult_SyntaxError(t *testing.T) {
	stderr := strings.Join([]string{
		"[eval]:3",
		"function (",
		"         ^",
		"",
		"SyntaxError: Function statements require a function name",
		"    at makeContextifyScript (node:internal/vm:122:14)",
		"",
		"Node.js v20.11.0",
	}, "\n")

	_, err := parseResult("", stderr, 1)
	require.Error(t, err)
	assert.Equal(t, "SyntaxError: Function statements require a function name", err.Error())
}

func TestParseResult_NoOutputAtAll(t *testing.T) {
	_, err := parseResult("", "", 137)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "137")
}

func TestParseResult_BadPayload(t *testing.T) {
	_, err := parseResult(resultMarker+"{not json", "", 0)
	assert.ErrorContains(t, err, "decoding sandbox result")
}

func TestReadbackStatement(t *testing.T) {
	assert.Contains(t, readback, `process.stdout.write("\n`+resultMarker+`"`)
	assert.Contains(t, readback, "__sandbox.output()")
	assert.Contains(t, readback, "__sandbox.logs()")
}
