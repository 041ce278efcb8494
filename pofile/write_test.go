package pofile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// widthFile builds a minimal catalog around a single msgid for wrap tests.
func widthFile(msgid string) *File {
	f := NewFile()
	f.Header = MakeHeader(nil, "ru")
	f.Entries = append(f.Entries, &Entry{MsgID: msgid, MsgStr: ""})
	return f
}

func TestWriteWidthInvariant(t *testing.T) {
	long := strings.Repeat("word ", 40) + "tail"
	tests := []struct {
		name  string
		msgid string
		width int
	}{
		{"long prose", long, 76},
		{"narrow width", long, 30},
		{"embedded newlines", "one line\nanother line\nthird", 76},
		{"escapes count once escaped", strings.Repeat(`a"b\c `, 20), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := widthFile(tt.msgid).Write(&buf, tt.width); err != nil {
				t.Fatalf("Write error: %v", err)
			}
			for _, line := range strings.Split(buf.String(), "\n") {
				if len(line) > tt.width {
					// Only an unsplittable token may overflow.
					inner := strings.Trim(line, `"`)
					if strings.Contains(strings.TrimSpace(inner), " ") {
						t.Fatalf("line exceeds width %d and is splittable: %q", tt.width, line)
					}
				}
			}

			round, err := Parse(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("reparse error: %v", err)
			}
			if got := round.Entries[0].MsgID; got != tt.msgid {
				t.Fatalf("wrap lost content:\ngot  %q\nwant %q", got, tt.msgid)
			}
		})
	}
}

func TestWriteUnsplittableTokenOverflows(t *testing.T) {
	word := strings.Repeat("x", 40)
	var buf bytes.Buffer
	if err := widthFile("pre " + word).Write(&buf, 20); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if !strings.Contains(buf.String(), "\""+word+"\"\n") {
		t.Fatalf("40-char token should land unshortened on its own line:\n%s", buf.String())
	}

	round, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reparse error: %v", err)
	}
	if round.Entries[0].MsgID != "pre "+word {
		t.Fatalf("content lost: %q", round.Entries[0].MsgID)
	}
}

func TestWriteZeroWidthDisablesWrapping(t *testing.T) {
	long := strings.Repeat("word ", 50)
	f := NewFile()
	f.Entries = append(f.Entries, &Entry{MsgID: long, MsgStr: long})

	var buf bytes.Buffer
	if err := f.Write(&buf, 0); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "msgid ") && !strings.HasPrefix(line, "msgstr ") {
			t.Fatalf("width 0 must emit one line per field, got: %q", line)
		}
	}
}

func TestWriteNoWrapFlag(t *testing.T) {
	long := strings.Repeat("word ", 50)
	f := &File{}
	f.Entries = append(f.Entries, &Entry{
		Flags:  []string{"no-wrap"},
		MsgID:  long,
		MsgStr: "",
	})

	var buf bytes.Buffer
	if err := f.Write(&buf, 76); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if strings.Count(buf.String(), "msgid") != 1 {
		t.Fatal("no-wrap entry serialized unexpectedly")
	}
	if !strings.Contains(buf.String(), "msgid \""+long+"\"") {
		t.Fatalf("no-wrap must keep the field on one line:\n%s", buf.String())
	}
}

func TestWriteObsoletePrefix(t *testing.T) {
	f := NewFile()
	f.Entries = append(f.Entries, &Entry{
		MsgID:    "gone",
		MsgStr:   "proshlo",
		Obsolete: true,
	})

	var buf bytes.Buffer
	if err := f.Write(&buf, 76); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "#~ msgid \"gone\"") || !strings.Contains(out, "#~ msgstr \"proshlo\"") {
		t.Fatalf("obsolete entry not prefixed:\n%s", out)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.po")

	f := NewFile()
	f.Header = MakeHeader(nil, "de")
	f.Entries = append(f.Entries, &Entry{MsgID: "hello", MsgStr: "hallo"})

	if err := f.WriteFile(path, DefaultLineWidth); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temporary file left behind")
	}

	round, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if got := round.Entry("hello", ""); got == nil || got.MsgStr != "hallo" {
		t.Fatalf("written catalog mismatch: %#v", got)
	}
}
