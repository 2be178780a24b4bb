package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sevigo/patchlens/internal/core"
)

// chunkReply is the wire form of a structured model reply.
type chunkReply struct {
	SchemaVersion   int            `json:"schema_version"`
	Summary         string         `json:"summary"`
	Comments        []replyComment `json:"comments"`
	Vulnerabilities []string       `json:"vulnerabilities"`
}

type replyComment struct {
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ChunkReview is a parsed, validated model reply for one diff portion.
type ChunkReview struct {
	Summary         string
	Comments        []core.LineComment
	Vulnerabilities []string
}

const currentSchemaVersion = 1

var validSeverities = map[string]struct{}{
	"info":     {},
	"warning":  {},
	"critical": {},
}

// ParseChunkReply extracts the JSON object from a raw model reply and maps it
// to a ChunkReview. Models wrap JSON in fences, prepend prose, or emit broken
// escapes often enough that all three are handled here. A reply that yields
// no parsable JSON is an error; the caller decides whether to degrade to the
// raw text.
func ParseChunkReply(raw string) (*ChunkReview, error) {
	jsonString, err := extractJSON(raw)
	if err != nil {
		// Invalid escapes break extraction itself; repair and retry once.
		jsonString, err = extractJSON(sanitizeJSON(raw))
		if err != nil {
			return nil, err
		}
	}

	var reply chunkReply
	if err := json.Unmarshal([]byte(jsonString), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse reply JSON: %w", err)
	}

	if reply.SchemaVersion != 0 && reply.SchemaVersion != currentSchemaVersion {
		return nil, fmt.Errorf("unsupported reply schema version %d", reply.SchemaVersion)
	}
	if strings.TrimSpace(reply.Summary) == "" && len(reply.Comments) == 0 && len(reply.Vulnerabilities) == 0 {
		return nil, fmt.Errorf("reply JSON carries no content")
	}

	review := &ChunkReview{Summary: strings.TrimSpace(reply.Summary)}
	for _, c := range reply.Comments {
		msg := strings.TrimSpace(c.Message)
		if msg == "" || c.Line <= 0 {
			continue
		}
		severity := strings.ToLower(strings.TrimSpace(c.Severity))
		if _, ok := validSeverities[severity]; !ok {
			severity = "info"
		}
		review.Comments = append(review.Comments, core.LineComment{
			Line:     c.Line,
			Severity: severity,
			Message:  msg,
		})
	}
	for _, v := range reply.Vulnerabilities {
		if v = strings.TrimSpace(v); v != "" {
			review.Vulnerabilities = append(review.Vulnerabilities, v)
		}
	}
	return review, nil
}

func extractJSON(raw string) (string, error) {
	// Strip markdown code fences if the model included them.
	if startFence := strings.Index(raw, "```"); startFence != -1 {
		if endFence := strings.LastIndex(raw, "```"); endFence > startFence {
			inner := raw[startFence+3 : endFence]
			inner = strings.TrimSpace(inner)
			if strings.HasPrefix(strings.ToLower(inner), "json") {
				inner = strings.TrimSpace(inner[4:])
			}
			raw = inner
		}
	}

	raw = strings.TrimSpace(raw)

	// Optimistic attempt: the whole thing is already valid JSON.
	if json.Valid([]byte(raw)) {
		return raw, nil
	}

	// Otherwise find the first '{' and decode a single object from there,
	// tolerating trailing prose after it.
	startBrace := strings.Index(raw, "{")
	if startBrace == -1 {
		return "", fmt.Errorf("reply did not contain valid JSON start")
	}
	raw = raw[startBrace:]

	decoder := json.NewDecoder(strings.NewReader(raw))
	var msg any
	if err := decoder.Decode(&msg); err != nil {
		return "", fmt.Errorf("failed to decode JSON from reply: %w", err)
	}
	clean, _ := json.Marshal(msg)
	return string(clean), nil
}

// sanitizeJSON attempts to fix common invalid escape sequences in model
// output using round-trip validation.
func sanitizeJSON(input string) string {
	if json.Valid([]byte(input)) {
		return input
	}

	var sb strings.Builder
	sb.Grow(len(input) + 20)

	runes := []rune(input)
	length := len(runes)

	for i := 0; i < length; i++ {
		char := runes[i]
		if char == '\\' {
			if i+1 >= length {
				sb.WriteRune('\\')
				sb.WriteRune('\\')
				break
			}

			next := runes[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				sb.WriteRune(char)
				sb.WriteRune(next)
				i++
			default:
				// Invalid escape (e.g. \s in a Windows path), escape
				// the backslash and reprocess the next rune normally.
				sb.WriteRune('\\')
				sb.WriteRune('\\')
			}
		} else {
			sb.WriteRune(char)
		}
	}

	return sb.String()
}
