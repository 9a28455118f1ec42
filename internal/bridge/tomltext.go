package bridge

import (
	"regexp"
	"strings"
)

// The helpers in this file edit TOML as text, one line at a time, so that a
// user's hand-written fragment keeps its layout. They only understand
// single-line `key = value` assignments and `[table]` headers, which is all
// the Codex fields need.

var (
	tomlHeaderRe = regexp.MustCompile(`^\s*\[\[?\s*([^\]]+?)\s*\]\]?\s*(#.*)?$`)
	tomlValueRe  = regexp.MustCompile(`^(\s*[A-Za-z0-9_\-"'.]+\s*=\s*)("(?:[^"\\]|\\.)*"|'[^']*')(.*)$`)
)

// tomlDoc is a fragment split into lines with the line ending remembered.
type tomlDoc struct {
	lines []string
	crlf  bool
}

func parseTOMLText(text string) *tomlDoc {
	d := &tomlDoc{crlf: strings.Contains(text, "\r\n")}
	if d.crlf {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	d.lines = strings.Split(text, "\n")
	return d
}

func (d *tomlDoc) String() string {
	s := strings.Join(d.lines, "\n")
	if d.crlf {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return s
}

// header returns the table name if line i is a table header.
func (d *tomlDoc) header(i int) (string, bool) {
	m := tomlHeaderRe.FindStringSubmatch(d.lines[i])
	if m == nil {
		return "", false
	}
	return normalizeTableName(m[1]), true
}

func normalizeTableName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return strings.Join(parts, ".")
}

// keyOf returns the bare key assigned on line i, if any.
func (d *tomlDoc) keyOf(i int) (string, bool) {
	line := strings.TrimSpace(d.lines[i])
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
		return "", false
	}
	eq := strings.Index(line, "=")
	if eq <= 0 {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(line[:eq]), `"'`), true
}

// find returns the index of the line assigning key inside table ("" is the
// root table), or -1.
func (d *tomlDoc) find(table, key string) int {
	current := ""
	for i := range d.lines {
		if name, ok := d.header(i); ok {
			current = name
			continue
		}
		if current != table {
			continue
		}
		if k, ok := d.keyOf(i); ok && k == key {
			return i
		}
	}
	return -1
}

// soleSubtable returns "<parent>.<name>" when exactly one direct child
// table of parent has a header, or "".
func (d *tomlDoc) soleSubtable(parent string) string {
	prefix := parent + "."
	found := ""
	for i := range d.lines {
		name, ok := d.header(i)
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		child := prefix + strings.SplitN(rest, ".", 2)[0]
		if found != "" && found != child {
			return ""
		}
		found = child
	}
	return found
}

// headerIndex returns the line index of the given table header, or -1.
func (d *tomlDoc) headerIndex(table string) int {
	for i := range d.lines {
		if name, ok := d.header(i); ok && name == table {
			return i
		}
	}
	return -1
}

// firstHeader returns the index of the first table header, or -1.
func (d *tomlDoc) firstHeader() int {
	for i := range d.lines {
		if _, ok := d.header(i); ok {
			return i
		}
	}
	return -1
}

// stringValue returns the unquoted string assigned on line i.
func (d *tomlDoc) stringValue(i int) (string, bool) {
	m := tomlValueRe.FindStringSubmatch(d.lines[i])
	if m == nil {
		return "", false
	}
	return unquoteTOML(m[2]), true
}

// replaceValue rewrites only the value on line i, keeping indentation, the
// key spelling, the quote style where possible, and any trailing comment.
func (d *tomlDoc) replaceValue(i int, value string) {
	line := d.lines[i]
	if m := tomlValueRe.FindStringSubmatch(line); m != nil {
		d.lines[i] = m[1] + quoteTOML(value, m[2][0]) + m[3]
		return
	}
	eq := strings.Index(line, "=")
	d.lines[i] = strings.TrimRight(line[:eq+1], " ") + " " + quoteTOML(value, '"')
}

func (d *tomlDoc) insert(at int, line string) {
	d.lines = append(d.lines, "")
	copy(d.lines[at+1:], d.lines[at:])
	d.lines[at] = line
}

func (d *tomlDoc) remove(i int) {
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
}

// insertRoot adds a root-table assignment before the first table header, or
// at the end of the document when there is none.
func (d *tomlDoc) insertRoot(line string) {
	if h := d.firstHeader(); h >= 0 {
		d.insert(h, line)
		return
	}
	d.appendLine(line)
}

// appendLine adds line at the end, before a trailing newline if present.
func (d *tomlDoc) appendLine(line string) {
	n := len(d.lines)
	if n > 0 && d.lines[n-1] == "" {
		if n == 1 {
			d.lines = []string{line}
			return
		}
		d.insert(n-1, line)
		return
	}
	d.lines = append(d.lines, line)
}

// setRoot sets or removes a string key in the root table.
func (d *tomlDoc) setRoot(key, value string) {
	i := d.find("", key)
	switch {
	case i >= 0 && value == "":
		d.remove(i)
	case i >= 0:
		d.replaceValue(i, value)
	case value != "":
		d.insertRoot(key + " = " + quoteTOML(value, '"'))
	}
}

func quoteTOML(v string, style byte) string {
	if style == '\'' && !strings.ContainsAny(v, "'\n") {
		return "'" + v + "'"
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(v) + `"`
}

func unquoteTOML(q string) string {
	if len(q) < 2 {
		return q
	}
	if q[0] == '\'' {
		return q[1 : len(q)-1]
	}
	r := strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n", `\t`, "\t")
	return r.Replace(q[1 : len(q)-1])
}
