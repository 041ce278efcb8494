package pofile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultLineWidth is the conventional maximum output line width for PO files.
const DefaultLineWidth = 76

// Write serializes the PO file to a writer, wrapping quoted strings at the
// given width. A width of zero or less disables wrapping entirely: every
// field is emitted as a single line.
func (f *File) Write(w io.Writer, width int) error {
	bw := bufio.NewWriter(w)

	if f.Header != nil {
		writeEntry(bw, f.Header, width)
	}

	for _, e := range f.Entries {
		fmt.Fprintln(bw)
		writeEntry(bw, e, width)
	}

	return bw.Flush()
}

// WriteError reports a catalog that could not be written to disk.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// WriteFile serializes the PO file to disk. The file is written to a
// temporary sibling first and atomically renamed into place, so an
// interrupted run never leaves a partially written catalog behind.
func (f *File) WriteFile(path string, width int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if err := f.Write(out, width); err != nil {
		out.Close()
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func writeEntry(w *bufio.Writer, e *Entry, width int) {
	prefix := ""
	if e.Obsolete {
		prefix = "#~ "
	}

	// Translator comments
	for _, c := range e.TranslatorComments {
		if c == "" {
			fmt.Fprintln(w, "#")
		} else {
			fmt.Fprintf(w, "# %s\n", c)
		}
	}

	// Extracted comments
	for _, c := range e.ExtractedComments {
		fmt.Fprintf(w, "#. %s\n", c)
	}

	// References
	for _, ref := range e.References {
		fmt.Fprintf(w, "#: %s\n", ref)
	}

	// Flags
	if len(e.Flags) > 0 {
		fmt.Fprintf(w, "#, %s\n", strings.Join(e.Flags, ", "))
	}

	// Previous msgid
	if e.PreviousMsgID != "" {
		fmt.Fprintf(w, "#| msgid \"%s\"\n", escape(e.PreviousMsgID))
	}

	// Entries flagged no-wrap bypass wrapping regardless of the width.
	if e.HasFlag("no-wrap") {
		width = 0
	}

	// msgctxt
	if e.MsgCtxt != "" {
		writeField(w, prefix, "msgctxt", e.MsgCtxt, width)
	}

	// msgid
	writeField(w, prefix, "msgid", e.MsgID, width)

	// msgid_plural
	if e.MsgIDPlural != "" {
		writeField(w, prefix, "msgid_plural", e.MsgIDPlural, width)
	}

	// msgstr / msgstr[N]
	if e.MsgIDPlural != "" && len(e.MsgStrPlural) > 0 {
		for _, idx := range sortedPluralIndices(e.MsgStrPlural) {
			writeField(w, prefix, fmt.Sprintf("msgstr[%d]", idx), e.MsgStrPlural[idx], width)
		}
	} else {
		writeField(w, prefix, "msgstr", e.MsgStr, width)
	}
}

// sortedPluralIndices returns the plural form indices of an entry in order.
func sortedPluralIndices(m map[int]string) []int {
	indices := make([]int, 0, len(m))
	for idx := range m {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// writeField emits one quoted PO field, wrapping at word boundaries so that
// no emitted line (including its quote characters) exceeds width. A single
// token longer than the width is emitted on its own line unshortened.
func writeField(w *bufio.Writer, prefix, field, value string, width int) {
	esc := escape(value)

	// width <= 0 (or no-wrap): exactly one line, however long.
	if width <= 0 {
		fmt.Fprintf(w, "%s%s \"%s\"\n", prefix, field, esc)
		return
	}

	// Fits on one line and has no embedded newline: emit as-is.
	fits := len(prefix)+len(field)+1+2+len(esc) <= width
	if fits && !strings.Contains(value, "\n") {
		fmt.Fprintf(w, "%s%s \"%s\"\n", prefix, field, esc)
		return
	}

	// Multi-line form: empty string after the keyword, then wrapped chunks.
	fmt.Fprintf(w, "%s%s \"\"\n", prefix, field)

	budget := width - 2 - len(prefix) // room inside the quotes
	if budget < 1 {
		budget = 1
	}

	for _, line := range splitAfterNewlines(value) {
		for _, chunk := range wrapLine(line, budget) {
			fmt.Fprintf(w, "%s\"%s\"\n", prefix, escape(chunk))
		}
	}
}

// splitAfterNewlines splits s after each newline, keeping the newline
// attached to its line. The concatenation of the pieces is s.
func splitAfterNewlines(s string) []string {
	parts := strings.SplitAfter(s, "\n")
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// wrapLine splits one logical line into chunks whose escaped form fits in
// budget characters. Breaks happen only at token boundaries (after runs of
// spaces), so escape sequences are never split and the concatenation of the
// chunks reproduces the line byte for byte.
func wrapLine(line string, budget int) []string {
	if line == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, tok := range splitTokens(line) {
		tokLen := len(escape(tok))
		if curLen > 0 && curLen+tokLen > budget {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(tok)
		curLen += tokLen
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitTokens splits s into tokens, each a run of non-space characters
// followed by its trailing spaces. Joining the tokens reproduces s exactly.
func splitTokens(s string) []string {
	var tokens []string
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && s[j] != ' ' {
			j++
		}
		for j < len(s) && s[j] == ' ' {
			j++
		}
		tokens = append(tokens, s[i:j])
		i = j
	}
	return tokens
}

// escape produces the PO-quoted form of a string, without the surrounding
// quotes. It is the exact inverse of the parser's unquoting.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
