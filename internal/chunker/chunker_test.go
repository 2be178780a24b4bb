package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallDiff = `diff --git a/pkg/auth/login.go b/pkg/auth/login.go
index 1111111..2222222 100644
--- a/pkg/auth/login.go
+++ b/pkg/auth/login.go
@@ -10,3 +10,6 @@ func Login() error {
 	ctx := context.Background()
+	if user == nil {
+		return ErrNoUser
+	}
 	return nil
 }
`

const renameDiff = `diff --git a/pkg/auth/old.go b/pkg/auth/new.go
similarity index 100%
rename from pkg/auth/old.go
rename to pkg/auth/new.go
`

const binaryDiff = `diff --git a/assets/logo.png b/assets/logo.png
index 1111111..2222222 100644
Binary files a/assets/logo.png and b/assets/logo.png differ
`

func TestChunkEmptyDiff(t *testing.T) {
	res, err := New(0, 0).Chunk("   \n\n")
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.BinarySkipped)
}

func TestChunkSingleFile(t *testing.T) {
	res, err := New(12000, 5).Chunk(smallDiff)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)

	chunk := res.Chunks[0]
	assert.Equal(t, 0, chunk.ID)
	assert.Equal(t, "pkg/auth/login.go", chunk.FilePath)
	assert.Equal(t, 10, chunk.StartLine)
	assert.Equal(t, 15, chunk.EndLine)
	assert.Contains(t, chunk.Content, "@@ -10,3 +10,6 @@")
	assert.Contains(t, chunk.Content, "+\t\treturn ErrNoUser")
	assert.Empty(t, chunk.PrecedingContext)
	assert.True(t, chunk.Reviewable())
}

func TestChunkMultipleFiles(t *testing.T) {
	diff := smallDiff + `diff --git a/pkg/auth/token.go b/pkg/auth/token.go
index 3333333..4444444 100644
--- a/pkg/auth/token.go
+++ b/pkg/auth/token.go
@@ -1,3 +1,4 @@
 package auth
+// expiry is validated on refresh

 import "time"
`
	res, err := New(12000, 5).Chunk(diff)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)

	assert.Equal(t, "pkg/auth/login.go", res.Chunks[0].FilePath)
	assert.Equal(t, "pkg/auth/token.go", res.Chunks[1].FilePath)
	assert.Equal(t, 0, res.Chunks[0].ID)
	assert.Equal(t, 1, res.Chunks[1].ID)
}

func TestChunkEmptyContextLineInsideHunk(t *testing.T) {
	// Some diff producers emit empty context lines as "" instead of " ".
	diff := "diff --git a/notes.txt b/notes.txt\n" +
		"index 1111111..2222222 100644\n" +
		"--- a/notes.txt\n" +
		"+++ b/notes.txt\n" +
		"@@ -1,5 +1,6 @@\n" +
		" first\n" +
		"\n" +
		" third\n" +
		"+added\n" +
		" fourth\n" +
		" fifth\n"

	res, err := New(12000, 5).Chunk(diff)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)

	chunk := res.Chunks[0]
	assert.Equal(t, 1, chunk.StartLine)
	assert.Equal(t, 6, chunk.EndLine, "an empty context line still advances the line counter")
	assert.Contains(t, chunk.Content, "+added")
}

func TestChunkRenameOnly(t *testing.T) {
	res, err := New(12000, 5).Chunk(renameDiff)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)

	chunk := res.Chunks[0]
	assert.Equal(t, "pkg/auth/new.go", chunk.FilePath)
	assert.True(t, chunk.RenameOnly)
	assert.False(t, chunk.Reviewable())
}

func TestChunkBinaryFile(t *testing.T) {
	res, err := New(12000, 5).Chunk(binaryDiff + smallDiff)
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/logo.png"}, res.BinarySkipped)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "pkg/auth/login.go", res.Chunks[0].FilePath)
}

func TestChunkOversizedHunkSplits(t *testing.T) {
	diff := bigHunkDiff(80)
	res, err := New(400, 3).Chunk(diff)
	require.NoError(t, err)
	require.Greater(t, len(res.Chunks), 1)

	// The hunk header survives only in the first piece.
	assert.True(t, strings.HasPrefix(res.Chunks[0].Content, "@@"))
	for i, chunk := range res.Chunks {
		assert.Equal(t, i, chunk.ID)
		assert.Equal(t, "pkg/gen/big.go", chunk.FilePath)
		assert.LessOrEqual(t, len(chunk.Content), 400)
		if i > 0 {
			assert.NotContains(t, chunk.Content, "@@")
			assert.NotEmpty(t, chunk.PrecedingContext)
			assert.True(t, strings.HasSuffix(res.Chunks[i-1].Content, chunk.PrecedingContext),
				"preceding context must be the tail of the previous chunk")
		}
	}

	// Every added line of the source hunk survives in exactly the chunk order.
	var all strings.Builder
	for _, chunk := range res.Chunks {
		all.WriteString(chunk.Content)
		all.WriteString("\n")
	}
	for i := 0; i < 80; i++ {
		assert.Contains(t, all.String(), fmt.Sprintf("+\tvalue%d :=", i))
	}
}

func TestChunkDeterministic(t *testing.T) {
	diff := bigHunkDiff(40) + renameDiff + binaryDiff
	first, err := New(300, 2).Chunk(diff)
	require.NoError(t, err)
	second, err := New(300, 2).Chunk(diff)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunkMalformedDiff(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{
			name: "content outside file section",
			diff: "this is not a diff",
		},
		{
			name: "invalid hunk header",
			diff: "diff --git a/x.go b/x.go\n+++ b/x.go\n@@ broken @@\n+x\n",
		},
		{
			name: "garbage in file header",
			diff: "diff --git a/x.go b/x.go\n<<<garbage>>>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(12000, 5).Chunk(tt.diff)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDiff))
		})
	}
}

// bigHunkDiff builds a single-file diff whose one hunk has n added lines.
func bigHunkDiff(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/pkg/gen/big.go b/pkg/gen/big.go\n")
	b.WriteString("index 1111111..2222222 100644\n")
	b.WriteString("--- a/pkg/gen/big.go\n")
	b.WriteString("+++ b/pkg/gen/big.go\n")
	fmt.Fprintf(&b, "@@ -1,1 +1,%d @@\n", n+1)
	b.WriteString(" package gen\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "+\tvalue%d := compute(%d)\n", i, i)
	}
	return b.String()
}
