package docindex

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMaxPageSize is used when no page size limit is configured
const DefaultMaxPageSize = 1024 * 1024

// Page is a documentation page rendered as plain text.
type Page struct {
	Path   string // slash-separated, relative to the docs root
	Anchor string // fragment of the target, if any
	Title  string
	Text   string
	Size   int64
	// AnchorFound reports whether Text starts at Anchor rather than at the
	// top of the page.
	AnchorFound bool
}

// ResolveTarget splits a link target into a page path relative to the docs
// root and an anchor. Older Doxygen versions write targets relative to the
// search directory ("../classA.html"); the leading "../" is dropped.
func ResolveTarget(target string) (string, string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", fmt.Errorf("%w: target cannot be empty", ErrInvalidTarget)
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "" || u.Host != "" {
		return "", "", fmt.Errorf("%w: external links cannot be read", ErrInvalidTarget)
	}

	p := u.Path
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	if p == "" {
		return "", "", fmt.Errorf("%w: target has no page", ErrInvalidTarget)
	}

	cleaned := path.Clean(p)
	if path.IsAbs(cleaned) || filepath.IsAbs(p) {
		return "", "", fmt.Errorf("%w: absolute paths are not allowed", ErrInvalidTarget)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", fmt.Errorf("%w: path traversal is not allowed", ErrInvalidTarget)
	}

	return cleaned, u.Fragment, nil
}

// ReadPage reads the page target points at under root and renders it as text.
// When the target has an anchor the text starts at the anchored element.
func ReadPage(root, target string, maxSize int64) (*Page, error) {
	rel, anchor, err := ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	root = filepath.Clean(root)
	fullPath := filepath.Join(root, filepath.FromSlash(rel))
	if r, err := filepath.Rel(root, fullPath); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: path traversal is not allowed", ErrInvalidTarget)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPageNotFound, rel)
		}
		return nil, fmt.Errorf("failed to access page: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidTarget, rel)
	}
	if info.Size() > maxSize {
		return nil, &PageTooLargeError{Size: info.Size(), Max: maxSize}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	if IsBinary(content) {
		return nil, ErrBinaryPage
	}

	page := &Page{Path: rel, Anchor: anchor, Size: info.Size()}
	page.Title, page.Text, page.AnchorFound = RenderHTML(content, anchor)
	if anchor != "" && !page.AnchorFound {
		_, page.Text, _ = RenderHTML(content, "")
	}
	return page, nil
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}

// blockElements start a new line in rendered text
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Table: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Hr: true, atom.Blockquote: true,
}

// RenderHTML extracts the title and visible text of an HTML page. With a
// non-empty anchor, text collection starts at the element whose id or name
// equals it; found reports whether that element exists.
func RenderHTML(content []byte, anchor string) (title, text string, found bool) {
	z := html.NewTokenizer(bytes.NewReader(content))
	var sb, tb strings.Builder
	capturing := anchor == ""
	skip := 0
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapseSpace(tb.String()), collapseLines(sb.String()), capturing

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Title:
				inTitle = tt == html.StartTagToken
			}
			if !capturing && hasAnchor(tok, anchor) {
				capturing = true
			}
			if capturing && blockElements[tok.DataAtom] {
				sb.WriteByte('\n')
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			case atom.Title:
				inTitle = false
			}
			if capturing && blockElements[tok.DataAtom] {
				sb.WriteByte('\n')
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			// Line breaks in markup are plain whitespace; only tags break lines
			data := lineBreaks.Replace(z.Token().Data)
			switch {
			case inTitle:
				tb.WriteString(data)
			case capturing:
				sb.WriteString(data)
			}
		}
	}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func hasAnchor(tok html.Token, anchor string) bool {
	for _, a := range tok.Attr {
		if (a.Key == "id" || a.Key == "name") && a.Val == anchor {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// collapseLines squeezes runs of whitespace within lines and drops blank lines
func collapseLines(s string) string {
	var out []string
	for line := range strings.SplitSeq(s, "\n") {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

