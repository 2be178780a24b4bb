package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunkReply(t *testing.T) {
	t.Run("plain JSON reply", func(t *testing.T) {
		raw := `{
			"schema_version": 1,
			"summary": "Adds input validation to the login handler.",
			"comments": [
				{"line": 42, "severity": "warning", "message": "error from Validate is discarded"}
			],
			"vulnerabilities": ["password is logged at debug level"]
		}`

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		assert.Equal(t, "Adds input validation to the login handler.", review.Summary)
		require.Len(t, review.Comments, 1)
		assert.Equal(t, 42, review.Comments[0].Line)
		assert.Equal(t, "warning", review.Comments[0].Severity)
		require.Len(t, review.Vulnerabilities, 1)
	})

	t.Run("JSON wrapped in markdown fence", func(t *testing.T) {
		raw := "Here is my review:\n```json\n{\"schema_version\":1,\"summary\":\"Looks fine.\",\"comments\":[],\"vulnerabilities\":[]}\n```\nLet me know if you need more."

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		assert.Equal(t, "Looks fine.", review.Summary)
		assert.Empty(t, review.Comments)
	})

	t.Run("JSON preceded by prose", func(t *testing.T) {
		raw := `Sure! {"summary":"Renames a helper.","comments":[],"vulnerabilities":[]} hope that helps`

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		assert.Equal(t, "Renames a helper.", review.Summary)
	})

	t.Run("invalid escape sequences are repaired", func(t *testing.T) {
		raw := `{"summary":"Touches C:\src\main.go only.","comments":[],"vulnerabilities":[]}`

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		assert.Contains(t, review.Summary, "main.go")
	})

	t.Run("unknown severity downgraded to info", func(t *testing.T) {
		raw := `{"summary":"x","comments":[{"line":3,"severity":"BLOCKER","message":"nil deref"}],"vulnerabilities":[]}`

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		require.Len(t, review.Comments, 1)
		assert.Equal(t, "info", review.Comments[0].Severity)
	})

	t.Run("comments without line or message are dropped", func(t *testing.T) {
		raw := `{"summary":"x","comments":[{"line":0,"severity":"info","message":"no anchor"},{"line":7,"severity":"info","message":""}],"vulnerabilities":[]}`

		review, err := ParseChunkReply(raw)
		require.NoError(t, err)
		assert.Empty(t, review.Comments)
	})

	t.Run("unsupported schema version", func(t *testing.T) {
		raw := `{"schema_version":2,"summary":"x","comments":[],"vulnerabilities":[]}`

		_, err := ParseChunkReply(raw)
		assert.Error(t, err)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ParseChunkReply("I could not review this chunk, sorry.")
		assert.Error(t, err)
	})

	t.Run("empty JSON object", func(t *testing.T) {
		_, err := ParseChunkReply(`{}`)
		assert.Error(t, err)
	})
}
