// Package payload extracts structured sub-payloads (search results,
// image results) that the backend inlines into free-text content using
// comment-delimited envelopes. Decoding is best-effort: content with no
// recognizable envelope decodes to nil and should be rendered as plain
// text.
package payload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Well-known payload kinds. Decode accepts any upper-snake kind; these
// are the two the backend currently emits.
const (
	KindSearchResults = "SEARCH_RESULTS"
	KindImageResults  = "IMAGE_RESULTS"
)

// SearchResult is one entry of a search-results payload.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ImageResult is one entry of an image-results payload.
type ImageResult struct {
	Title     string `json:"title,omitempty"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Payload is a decoded embedded payload. Raw always carries the exact
// JSON body of the envelope; Query/Results/Images are populated when
// the body has the well-known shape.
type Payload struct {
	Kind    string
	Query   string
	Results []SearchResult
	Images  []ImageResult
	Raw     json.RawMessage
}

// envelope is the JSON shape shared by the well-known kinds.
type envelope struct {
	Query   string         `json:"query,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
	Images  []ImageResult  `json:"images,omitempty"`
}

var (
	b64MarkerRe = regexp.MustCompile(`<!--\s*([A-Z][A-Z0-9_]*)_JSON_B64:\s*([A-Za-z0-9+/=\s]+?)\s*-->`)
	rawMarkerRe = regexp.MustCompile(`<!--\s*([A-Z][A-Z0-9_]*)_JSON:\s*([\s\S]*?)\s*-->`)

	plainHeaderRe = regexp.MustCompile(`Search results for ['"](.+?)['"]`)
	plainItemRe   = regexp.MustCompile(`(?m)^\s*\d+\.\s+\*\*(.+?)\*\*`)
	plainURLRe    = regexp.MustCompile(`URL:\s*(\S+)`)
)

// Encode wraps a JSON-serializable value in the binary-to-text envelope
// for the given kind. Used by the demo server and tests; production
// envelopes come from the backend.
func Encode(kind string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload body: %w", err)
	}
	return fmt.Sprintf("<!-- %s_JSON_B64: %s -->", kind, base64.StdEncoding.EncodeToString(data)), nil
}

// Decode scans content for an embedded payload. It tries the
// base64-encoded envelope first, then the legacy raw-JSON envelope
// (tolerating trailing commas and escaped arrows), then a plain-text
// search-results heuristic. It returns nil when nothing recognizable is
// found; that is not an error.
func Decode(content string) *Payload {
	if content == "" {
		return nil
	}

	if m := b64MarkerRe.FindStringSubmatch(content); m != nil {
		if p := decodeB64(m[1], m[2]); p != nil {
			return p
		}
	}

	if m := rawMarkerRe.FindStringSubmatch(content); m != nil {
		if p := decodeRaw(m[1], m[2]); p != nil {
			return p
		}
	}

	return decodePlainText(content)
}

func decodeB64(kind, data string) *Payload {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, data)

	body, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil
	}
	return fromBody(kind, body)
}

func decodeRaw(kind, data string) *Payload {
	// Legacy envelopes escape the comment terminator inside JSON
	// strings so the comment does not end early.
	data = strings.ReplaceAll(data, `--\>`, `-->`)
	data = strings.ReplaceAll(data, `=\>`, `=>`)
	// jsonc strips trailing commas and comments.
	body := jsonc.ToJSON([]byte(data))
	if !json.Valid(body) {
		return nil
	}
	return fromBody(kind, body)
}

func fromBody(kind string, body []byte) *Payload {
	if !json.Valid(body) {
		return nil
	}
	p := &Payload{Kind: kind, Raw: json.RawMessage(body)}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		p.Query = env.Query
		p.Results = env.Results
		p.Images = env.Images
	}
	return p
}

// decodePlainText parses the fixed "Search results for '<query>'" shape
// emitted before the envelope format existed. Best-effort only.
func decodePlainText(content string) *Payload {
	header := plainHeaderRe.FindStringSubmatch(content)
	if header == nil {
		return nil
	}

	items := plainItemRe.FindAllStringSubmatchIndex(content, -1)
	if len(items) == 0 {
		return nil
	}

	results := make([]SearchResult, 0, len(items))
	for i, loc := range items {
		title := content[loc[2]:loc[3]]

		blockEnd := len(content)
		if i+1 < len(items) {
			blockEnd = items[i+1][0]
		}
		block := content[loc[1]:blockEnd]

		var url string
		if m := plainURLRe.FindStringSubmatch(block); m != nil {
			url = m[1]
			block = plainURLRe.ReplaceAllString(block, "")
		}

		results = append(results, SearchResult{
			Title:   strings.TrimSpace(title),
			URL:     url,
			Snippet: strings.TrimSpace(block),
		})
	}

	return &Payload{
		Kind:    KindSearchResults,
		Query:   header[1],
		Results: results,
	}
}
