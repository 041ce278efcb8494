// Package pofile implements reading and writing of PO message catalogs
// following the GNU gettext format specification, including the
// line-wrapping rules documentation build tooling depends on.
package pofile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Entry represents a single translatable message in a PO file.
type Entry struct {
	// TranslatorComments are lines starting with "# " (translator comments).
	TranslatorComments []string
	// ExtractedComments are lines starting with "#." (extracted/automatic comments).
	ExtractedComments []string
	// References are source code locations, lines starting with "#:".
	References []string
	// Flags are format flags, lines starting with "#,".
	Flags []string
	// PreviousMsgID stores the previous msgid for fuzzy entries, lines starting with "#|".
	PreviousMsgID string

	// MsgCtxt is the message context (msgctxt).
	MsgCtxt string
	// MsgID is the untranslated string.
	MsgID string
	// MsgIDPlural is the untranslated plural string.
	MsgIDPlural string
	// MsgStr is the translated string (singular or the only form).
	MsgStr string
	// MsgStrPlural maps plural form index to translated string.
	MsgStrPlural map[int]string

	// Obsolete marks entries prefixed with "#~".
	Obsolete bool
}

// Key returns the identity of the entry: msgid plus the optional context.
// Two non-obsolete entries with the same Key are duplicates.
func (e *Entry) Key() string {
	if e.MsgCtxt != "" {
		return e.MsgCtxt + "\x04" + e.MsgID
	}
	return e.MsgID
}

// IsTranslated returns true if the entry has a non-empty, non-fuzzy translation.
func (e *Entry) IsTranslated() bool {
	if e.MsgID == "" {
		return false // header entry
	}
	if e.IsFuzzy() {
		return false
	}
	if e.MsgIDPlural != "" {
		for _, v := range e.MsgStrPlural {
			if v == "" {
				return false
			}
		}
		return len(e.MsgStrPlural) > 0
	}
	return e.MsgStr != ""
}

// IsFuzzy returns true if the entry is marked fuzzy.
func (e *Entry) IsFuzzy() bool {
	return e.HasFlag("fuzzy")
}

// SetFuzzy adds or removes the fuzzy flag.
func (e *Entry) SetFuzzy(fuzzy bool) {
	if fuzzy && !e.IsFuzzy() {
		e.Flags = append(e.Flags, "fuzzy")
	} else if !fuzzy {
		filtered := make([]string, 0, len(e.Flags))
		for _, f := range e.Flags {
			if f != "fuzzy" {
				filtered = append(filtered, f)
			}
		}
		e.Flags = filtered
	}
}

// HasFlag checks if a specific flag is present.
func (e *Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// File represents a parsed PO/POT file.
type File struct {
	// Header is the metadata entry (msgid "").
	Header *Entry
	// Entries are the translatable message entries, in file order.
	Entries []*Entry
}

// NewFile creates a new empty PO file.
func NewFile() *File {
	return &File{
		Header: &Entry{
			MsgID:  "",
			MsgStr: "",
		},
		Entries: make([]*Entry, 0),
	}
}

// HeaderField returns a header field value by name.
func (f *File) HeaderField(name string) string {
	if f.Header == nil {
		return ""
	}
	for _, line := range strings.Split(f.Header.MsgStr, "\n") {
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			if strings.EqualFold(key, name) {
				return strings.TrimSpace(line[idx+1:])
			}
		}
	}
	return ""
}

// SetHeaderField sets a header field value.
func (f *File) SetHeaderField(name, value string) {
	if f.Header == nil {
		f.Header = &Entry{MsgID: "", MsgStr: ""}
	}

	lines := strings.Split(f.Header.MsgStr, "\n")
	found := false
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			if strings.EqualFold(key, name) {
				lines[i] = name + ": " + value
				found = true
				break
			}
		}
	}
	if !found {
		// Insert before trailing empty line
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = append(lines[:len(lines)-1], name+": "+value, "")
		} else {
			lines = append(lines, name+": "+value)
		}
	}
	f.Header.MsgStr = strings.Join(lines, "\n")
}

// Entry finds a non-obsolete entry by msgid and context.
func (f *File) Entry(msgid, msgctxt string) *Entry {
	for _, e := range f.Entries {
		if e.MsgID == msgid && e.MsgCtxt == msgctxt && !e.Obsolete {
			return e
		}
	}
	return nil
}

// Stats returns translation statistics.
func (f *File) Stats() (total, translated, fuzzy, untranslated int) {
	for _, e := range f.Entries {
		if e.MsgID == "" || e.Obsolete {
			continue
		}
		total++
		if e.IsFuzzy() {
			fuzzy++
		} else if e.IsTranslated() {
			translated++
		} else {
			untranslated++
		}
	}
	return
}

// Nplurals returns the number of plural forms declared in the Plural-Forms
// header, falling back to the built-in per-language default for lang.
func (f *File) Nplurals(lang string) int {
	pluralForms := f.HeaderField("Plural-Forms")
	if pluralForms == "" {
		pluralForms = PluralFormsForLang(lang)
	}
	for _, part := range strings.Split(pluralForms, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "nplurals=") {
			n, err := strconv.Atoi(strings.TrimPrefix(part, "nplurals="))
			if err == nil && n > 0 {
				return n
			}
		}
	}
	return 2 // safe default
}

// ParseError describes a malformed construct in a PO file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads a PO/POT file from a reader.
func Parse(r io.Reader) (*File, error) {
	return parse(r, "")
}

// ParseFile reads a PO/POT file from disk. Parse errors carry the path.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f, path)
}

func parse(r io.Reader, path string) (*File, error) {
	f := NewFile()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var current *Entry
	var lastField string // tracks the last msgid/msgstr/etc. field for multiline strings
	lineNum := 0
	entryStart := 0
	seen := make(map[string]int) // entry key -> line of first definition

	fail := func(line int, format string, args ...any) error {
		return &ParseError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
	}

	var dupErr error
	flush := func() {
		if current == nil {
			return
		}
		if current.MsgID == "" && current.MsgCtxt == "" && !current.Obsolete {
			f.Header = current
		} else {
			if !current.Obsolete {
				key := current.Key()
				if first, dup := seen[key]; dup {
					dupErr = fail(entryStart, "duplicate message definition %q (first defined at line %d)", current.MsgID, first)
				}
				seen[key] = entryStart
			}
			f.Entries = append(f.Entries, current)
		}
		current = nil
		lastField = ""
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Empty line separates entries
		if strings.TrimSpace(line) == "" {
			flush()
			if dupErr != nil {
				return nil, dupErr
			}
			continue
		}

		if current == nil {
			current = &Entry{
				MsgStrPlural: make(map[int]string),
			}
			entryStart = lineNum
		}

		// Handle obsolete entries
		if strings.HasPrefix(line, "#~ ") {
			current.Obsolete = true
			line = line[3:]
		}

		// Comment lines
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#~") {
			if strings.HasPrefix(line, "#:") {
				// Reference
				refs := strings.TrimSpace(line[2:])
				current.References = append(current.References, refs)
			} else if strings.HasPrefix(line, "#,") {
				// Flags
				flagStr := strings.TrimSpace(line[2:])
				for _, flag := range strings.Split(flagStr, ",") {
					flag = strings.TrimSpace(flag)
					if flag == "" {
						continue
					}
					if strings.ContainsAny(flag, `"\`) {
						return nil, fail(lineNum, "invalid flag syntax: %q", flag)
					}
					current.Flags = append(current.Flags, flag)
				}
			} else if strings.HasPrefix(line, "#.") {
				// Extracted comment
				current.ExtractedComments = append(current.ExtractedComments, strings.TrimSpace(line[2:]))
			} else if strings.HasPrefix(line, "#|") {
				// Previous msgid
				prev := strings.TrimSpace(line[2:])
				if strings.HasPrefix(prev, "msgid ") {
					val, err := unquote(strings.TrimPrefix(prev, "msgid "))
					if err != nil {
						return nil, fail(lineNum, "previous msgid: %v", err)
					}
					current.PreviousMsgID = val
				}
			} else {
				// Translator comment
				comment := line[1:]
				if strings.HasPrefix(comment, " ") {
					comment = comment[1:]
				}
				current.TranslatorComments = append(current.TranslatorComments, comment)
			}
			continue
		}

		// msgctxt
		if strings.HasPrefix(line, "msgctxt ") {
			val, err := unquote(strings.TrimPrefix(line, "msgctxt "))
			if err != nil {
				return nil, fail(lineNum, "msgctxt: %v", err)
			}
			current.MsgCtxt = val
			lastField = "msgctxt"
			continue
		}

		// msgid_plural
		if strings.HasPrefix(line, "msgid_plural ") {
			val, err := unquote(strings.TrimPrefix(line, "msgid_plural "))
			if err != nil {
				return nil, fail(lineNum, "msgid_plural: %v", err)
			}
			current.MsgIDPlural = val
			lastField = "msgid_plural"
			continue
		}

		// msgid
		if strings.HasPrefix(line, "msgid ") {
			val, err := unquote(strings.TrimPrefix(line, "msgid "))
			if err != nil {
				return nil, fail(lineNum, "msgid: %v", err)
			}
			current.MsgID = val
			lastField = "msgid"
			continue
		}

		// msgstr[N]
		if strings.HasPrefix(line, "msgstr[") {
			var idx int
			n, err := fmt.Sscanf(line, "msgstr[%d]", &idx)
			if err != nil || n != 1 {
				return nil, fail(lineNum, "invalid msgstr index: %s", line)
			}
			bracketEnd := strings.Index(line, "] ")
			if bracketEnd < 0 {
				return nil, fail(lineNum, "invalid msgstr format: %s", line)
			}
			val, err := unquote(line[bracketEnd+2:])
			if err != nil {
				return nil, fail(lineNum, "msgstr[%d]: %v", idx, err)
			}
			current.MsgStrPlural[idx] = val
			lastField = fmt.Sprintf("msgstr[%d]", idx)
			continue
		}

		// msgstr
		if strings.HasPrefix(line, "msgstr ") {
			val, err := unquote(strings.TrimPrefix(line, "msgstr "))
			if err != nil {
				return nil, fail(lineNum, "msgstr: %v", err)
			}
			current.MsgStr = val
			lastField = "msgstr"
			continue
		}

		// Continuation line (starts with ")
		if strings.HasPrefix(line, "\"") {
			val, err := unquote(line)
			if err != nil {
				return nil, fail(lineNum, "%v", err)
			}
			switch {
			case lastField == "msgctxt":
				current.MsgCtxt += val
			case lastField == "msgid":
				current.MsgID += val
			case lastField == "msgid_plural":
				current.MsgIDPlural += val
			case lastField == "msgstr":
				current.MsgStr += val
			case strings.HasPrefix(lastField, "msgstr["):
				var idx int
				fmt.Sscanf(lastField, "msgstr[%d]", &idx)
				current.MsgStrPlural[idx] += val
			default:
				return nil, fail(lineNum, "continuation line without a preceding field")
			}
			continue
		}

		return nil, fail(lineNum, "unrecognized line: %s", line)
	}

	// Flush last entry
	flush()
	if dupErr != nil {
		return nil, dupErr
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading PO file: %w", err)
	}

	return f, nil
}

// unquote removes PO-style quoting from a string. It fails on strings that
// are not properly terminated so the parser can report the line.
func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' {
		return "", fmt.Errorf("expected quoted string, got %q", s)
	}

	var result strings.Builder
	result.Grow(len(s))

	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '"':
			if i != len(s)-1 {
				return "", fmt.Errorf("unexpected content after closing quote in %q", s)
			}
			return result.String(), nil
		case '\\':
			if i+1 >= len(s) {
				return "", fmt.Errorf("unterminated escape sequence in %q", s)
			}
			i++
			switch s[i] {
			case 'n':
				result.WriteByte('\n')
			case 't':
				result.WriteByte('\t')
			case 'r':
				result.WriteByte('\r')
			case '\\':
				result.WriteByte('\\')
			case '"':
				result.WriteByte('"')
			default:
				result.WriteByte('\\')
				result.WriteByte(s[i])
			}
		default:
			result.WriteByte(s[i])
		}
	}
	return "", fmt.Errorf("unterminated string %q", s)
}

// MakeHeader creates a standard PO file header for a target language,
// carrying project metadata over from the source catalog's header.
func MakeHeader(src *File, language string) *Entry {
	now := time.Now().UTC().Format("2006-01-02 15:04+0000")

	project := ""
	bugsEmail := ""
	potDate := now
	if src != nil {
		project = src.HeaderField("Project-Id-Version")
		bugsEmail = src.HeaderField("Report-Msgid-Bugs-To")
		if d := src.HeaderField("POT-Creation-Date"); d != "" {
			potDate = d
		}
	}

	headerStr := fmt.Sprintf(
		"Project-Id-Version: %s\n"+
			"Report-Msgid-Bugs-To: %s\n"+
			"POT-Creation-Date: %s\n"+
			"PO-Revision-Date: %s\n"+
			"Last-Translator: \n"+
			"Language-Team: \n"+
			"Language: %s\n"+
			"MIME-Version: 1.0\n"+
			"Content-Type: text/plain; charset=UTF-8\n"+
			"Content-Transfer-Encoding: 8bit\n"+
			"Plural-Forms: %s\n",
		project, bugsEmail, potDate, now, language, PluralFormsForLang(language),
	)

	return &Entry{
		MsgID:  "",
		MsgStr: headerStr,
	}
}

// PluralFormsForLang returns the standard Plural-Forms header for a language code.
func PluralFormsForLang(lang string) string {
	// Normalize to base language
	base := lang
	if idx := strings.IndexAny(lang, "_-"); idx > 0 {
		base = lang[:idx]
	}

	switch base {
	case "ja", "ko", "zh", "vi", "th", "id", "ms":
		return "nplurals=1; plural=0;"
	case "fr", "pt":
		return "nplurals=2; plural=(n > 1);"
	case "en", "de", "nl", "sv", "da", "no", "nb", "nn", "fi", "es", "it", "el", "he", "hu", "tr", "bg", "hi", "ur":
		return "nplurals=2; plural=(n != 1);"
	case "ru", "uk", "be", "hr", "sr", "bs":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "pl":
		return "nplurals=3; plural=(n==1 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "cs", "sk":
		return "nplurals=3; plural=(n==1 ? 0 : n>=2 && n<=4 ? 1 : 2);"
	case "ro":
		return "nplurals=3; plural=(n==1 ? 0 : (n==0 || (n%100 > 0 && n%100 < 20)) ? 1 : 2);"
	case "lt":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "lv":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n != 0 ? 1 : 2);"
	case "ar":
		return "nplurals=6; plural=(n==0 ? 0 : n==1 ? 1 : n==2 ? 2 : n%100>=3 && n%100<=10 ? 3 : n%100>=11 ? 4 : 5);"
	default:
		return "nplurals=2; plural=(n != 1);"
	}
}
