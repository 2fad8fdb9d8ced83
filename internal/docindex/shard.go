package docindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sha1n/mcp-docindex-server/internal/domain"
)

// Format identifies the on-disk encoding of a shard.
type Format int

const (
	// FormatJS is the Doxygen "var searchData=[...];" script.
	FormatJS Format = iota
	// FormatJSON is a plain JSON array with the same row layout and unescaped keys.
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatJS:
		return "js"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseShard decodes one shard into an IndexFile.
//
// Each row has the layout [id, [label, [url, flag, context], ...]]. A row with
// several links expands into one entry per link, sharing key and label.
// Entries are not validated here; Load rejects entries with missing fields.
func ParseShard(name string, format Format, r io.Reader) (domain.IndexFile, error) {
	category, _ := SplitShardName(name)
	file := domain.IndexFile{Name: name, Category: category}

	data, err := io.ReadAll(r)
	if err != nil {
		return file, fmt.Errorf("failed to read shard %s: %w", name, err)
	}

	var rows []any
	switch format {
	case FormatJS:
		rows, err = parseSearchData(name, data)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err = dec.Decode(&rows); err != nil {
			err = &SyntaxError{Shard: name, Offset: int(dec.InputOffset()), Msg: err.Error()}
		}
	default:
		err = fmt.Errorf("unsupported shard format: %d", format)
	}
	if err != nil {
		return file, err
	}

	decodeKey := NormalizeQuery
	if format == FormatJS {
		counted := hasRowCounters(rows)
		decodeKey = func(id string) string { return decodeSearchID(id, counted) }
	}

	for i, raw := range rows {
		entries, err := decodeRow(name, category, i, raw, decodeKey)
		if err != nil {
			return file, err
		}
		file.Entries = append(file.Entries, entries...)
	}

	return file, nil
}

// SplitShardName splits "classes_9" into category "classes" and partition "9".
// A name without a partition suffix is its own category.
func SplitShardName(name string) (category, partition string) {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func decodeRow(shard, category string, pos int, raw any, decodeKey func(string) string) ([]domain.IndexEntry, error) {
	row, ok := raw.([]any)
	if !ok || len(row) < 2 {
		return nil, &MalformedIndexError{Shard: shard, Row: pos, Field: "row", Msg: "expected [id, [label, links...]]"}
	}
	id, ok := row[0].(string)
	if !ok {
		return nil, &MalformedIndexError{Shard: shard, Row: pos, Field: "key", Msg: "id is not a string"}
	}
	body, ok := row[1].([]any)
	if !ok {
		return nil, &MalformedIndexError{Shard: shard, Row: pos, Field: "label", Msg: "row body is not an array"}
	}

	base := domain.IndexEntry{
		Key:      decodeKey(id),
		Category: category,
		Shard:    shard,
	}
	if len(body) > 0 {
		if label, ok := body[0].(string); ok {
			base.Label = html.UnescapeString(label)
		}
	}

	links := body[min(len(body), 1):]
	if len(links) == 0 {
		// Kept so that Load reports the missing target
		return []domain.IndexEntry{base}, nil
	}

	entries := make([]domain.IndexEntry, 0, len(links))
	for _, l := range links {
		link, ok := l.([]any)
		if !ok {
			return nil, &MalformedIndexError{Shard: shard, Row: pos, Field: "target", Msg: "link is not an array"}
		}
		e := base
		if len(link) > 0 {
			e.Target, _ = link[0].(string)
		}
		if len(link) > 1 {
			e.ParentFrame = isTruthy(link[1])
		}
		if len(link) > 2 {
			if ctx, ok := link[2].(string); ok {
				e.Context = html.UnescapeString(ctx)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isTruthy(v any) bool {
	switch n := v.(type) {
	case float64:
		return n != 0
	case json.Number:
		return n.String() != "0"
	case bool:
		return n
	default:
		return false
	}
}

// DecodeSearchID turns a Doxygen row id into its search key.
//
// Non-alphanumeric bytes are written as "_" followed by two lowercase hex
// digits, and the id ends in "_<n>" where n is a per-index counter:
// "plot_2eh_3" decodes to "plot.h".
func DecodeSearchID(id string) string {
	return decodeSearchID(id, true)
}

// decodeSearchID decodes id, first dropping its row counter when counted.
func decodeSearchID(id string, counted bool) string {
	if counted {
		if cut, _, ok := rowCounter(id); ok {
			id = id[:cut]
		}
	}

	var sb strings.Builder
	sb.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '_' && i+2 < len(id) {
			if b, err := strconv.ParseUint(id[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(b))
				i += 2
				continue
			}
		}
		sb.WriteByte(c)
	}
	key := sb.String()
	if !utf8.ValidString(key) {
		key = strings.ToValidUTF8(key, "\uFFFD")
	}
	return strings.ToLower(key)
}

// rowCounter splits the trailing "_<n>" off id. cut is the index of the
// underscore.
func rowCounter(id string) (cut int, n uint64, ok bool) {
	cut = strings.LastIndexByte(id, '_')
	if cut < 0 || cut == len(id)-1 || !isDigits(id[cut+1:]) {
		return 0, 0, false
	}
	n, err := strconv.ParseUint(id[cut+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return cut, n, true
}

// hasRowCounters reports whether the ids of a shard end in Doxygen's row
// counter. Some generator versions omit it, and then a trailing escape such
// as "_29" in "operator_28_29" must not be mistaken for one. Counted ids run
// consecutively through a shard. When they happen to, labels settle it: rows
// whose label matches only the uncounted reading outvote the others.
func hasRowCounters(rows []any) bool {
	if len(rows) == 0 {
		return false
	}

	var prev uint64
	ids := make([]string, len(rows))
	for i, raw := range rows {
		row, ok := raw.([]any)
		if !ok || len(row) == 0 {
			return false
		}
		id, ok := row[0].(string)
		if !ok {
			return false
		}
		_, n, ok := rowCounter(id)
		if !ok || (i > 0 && n != prev+1) {
			return false
		}
		ids[i], prev = id, n
	}

	votes := 0
	for i, id := range ids {
		label := rowLabel(rows[i].([]any))
		if label == "" {
			continue
		}
		counted, plain := decodeSearchID(id, true) == label, decodeSearchID(id, false) == label
		switch {
		case counted && !plain:
			votes++
		case plain && !counted:
			votes--
		}
	}
	return votes >= 0
}

// rowLabel returns the normalized label of a raw row, or "" if it has none.
func rowLabel(row []any) string {
	if len(row) < 2 {
		return ""
	}
	body, ok := row[1].([]any)
	if !ok || len(body) == 0 {
		return ""
	}
	label, _ := body[0].(string)
	return NormalizeQuery(html.UnescapeString(label))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseSearchData extracts the array literal assigned to searchData.
// A bare array literal is accepted as well.
func parseSearchData(shard string, src []byte) ([]any, error) {
	p := &literalParser{shard: shard, src: src}
	p.skipSpace()
	if p.pos < len(src) && src[p.pos] != '[' {
		idx := bytes.Index(src, []byte("searchData"))
		if idx < 0 {
			return nil, p.errorf("searchData assignment not found")
		}
		p.pos = idx + len("searchData")
		p.skipSpace()
		if !p.consume('=') {
			return nil, p.errorf("expected '=' after searchData")
		}
	}

	v, err := p.value()
	if err != nil {
		return nil, err
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, p.errorf("searchData is not an array")
	}

	p.skipSpace()
	p.consume(';')
	p.skipSpace()
	if p.pos != len(src) {
		return nil, p.errorf("unexpected trailing content")
	}
	return rows, nil
}

// literalParser reads the subset of JavaScript literals Doxygen emits:
// nested arrays, quoted strings and numbers.
type literalParser struct {
	shard string
	src   []byte
	pos   int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return &SyntaxError{Shard: p.shard, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		case '/':
			if !p.skipComment() {
				return
			}
		default:
			return
		}
	}
}

func (p *literalParser) skipComment() bool {
	rest := p.src[p.pos:]
	switch {
	case bytes.HasPrefix(rest, []byte("//")):
		end := bytes.IndexByte(rest, '\n')
		if end < 0 {
			p.pos = len(p.src)
		} else {
			p.pos += end + 1
		}
		return true
	case bytes.HasPrefix(rest, []byte("/*")):
		end := bytes.Index(rest[2:], []byte("*/"))
		if end < 0 {
			p.pos = len(p.src)
		} else {
			p.pos += end + 4
		}
		return true
	}
	return false
}

func (p *literalParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.array()
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) array() ([]any, error) {
	p.pos++ // '['
	items := []any{}
	for {
		p.skipSpace()
		if p.consume(']') {
			return items, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(']') {
			return items, nil
		}
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated array")
		}
		return nil, p.errorf("expected ',' or ']', got %q", p.src[p.pos])
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\n':
			return "", p.errorf("newline in string literal")
		case c == '\\':
			if err := p.escape(&sb); err != nil {
				return "", err
			}
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) escape(sb *strings.Builder) error {
	p.pos++ // '\\'
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '0':
		sb.WriteByte(0)
	case 'x':
		return p.hexEscape(sb, 2)
	case 'u':
		return p.hexEscape(sb, 4)
	default:
		// \\, \', \" and any other character stand for themselves
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(sb *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("short hex escape")
	}
	n, err := strconv.ParseUint(string(p.src[p.pos:p.pos+digits]), 16, 32)
	if err != nil {
		return p.errorf("invalid hex escape")
	}
	p.pos += digits
	sb.WriteRune(rune(n))
	return nil
}

func (p *literalParser) number() (float64, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(string(p.src[start:p.pos]), 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid number")
	}
	return n, nil
}
