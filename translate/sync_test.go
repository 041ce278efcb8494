package translate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sphinx-contrib/sphinxtr/lockfile"
	"github.com/sphinx-contrib/sphinxtr/locale"
	po "github.com/sphinx-contrib/sphinxtr/pofile"
)

// fakeService translates by prefixing the text, and can be told to fail for
// specific texts.
type fakeService struct {
	calls int
	fail  map[string]error
}

func (s *fakeService) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	s.calls++
	if err, ok := s.fail[text]; ok {
		return "", err
	}
	return "[" + targetLang + "] " + text, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// setupLocale builds a locale tree with one en catalog and optionally a ru
// counterpart, and returns the root.
func setupLocale(t *testing.T, srcContent, tgtContent string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "en", "LC_MESSAGES", "index.po"), srcContent)
	if tgtContent != "" {
		writeFile(t, filepath.Join(root, "ru", "LC_MESSAGES", "index.po"), tgtContent)
	}
	return root
}

const syncSrc = `msgid ""
msgstr ""
"Project-Id-Version: docs\n"

msgid "hello"
msgstr ""

msgid "world"
msgstr ""
`

const syncTgt = `msgid ""
msgstr ""
"Language: ru\n"
"Plural-Forms: nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && "
"n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);\n"

msgid "hello"
msgstr "privet"
`

func TestSyncAllCreatesMissingCatalog(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: svc})
	if err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}

	cr := report.Catalogs[0]
	if cr.Status != StatusCreated {
		t.Fatalf("Status = %s, want %s (%v)", cr.Status, StatusCreated, cr.Err)
	}
	if cr.Missing != 2 || cr.Translated != 2 || cr.Failed != 0 {
		t.Fatalf("report = %+v", cr)
	}

	out, err := po.ParseFile(pairs[0].Target)
	if err != nil {
		t.Fatalf("written catalog unreadable: %v", err)
	}
	if got := out.Entry("hello", ""); got == nil || got.MsgStr != "[ru] hello" {
		t.Fatalf("hello = %#v", got)
	}
	if got := out.HeaderField("Language"); got != "ru" {
		t.Fatalf("Language = %q", got)
	}
}

func TestSyncAllKeepsCurrentAndTranslatesMissing(t *testing.T) {
	root := setupLocale(t, syncSrc, syncTgt)
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: svc})
	if err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}

	cr := report.Catalogs[0]
	if cr.Status != StatusUpdated || cr.Current != 1 || cr.Translated != 1 {
		t.Fatalf("report = %+v", cr)
	}
	if svc.calls != 1 {
		t.Fatalf("service calls = %d, want 1 (current entries must not be re-sent)", svc.calls)
	}

	out, err := po.ParseFile(pairs[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Entry("hello", ""); got == nil || got.MsgStr != "privet" {
		t.Fatalf("existing translation lost: %#v", got)
	}
	if got := out.Entry("world", ""); got == nil || got.MsgStr != "[ru] world" {
		t.Fatalf("missing entry not translated: %#v", got)
	}
}

func TestSyncAllIsolatesEntryFailures(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{fail: map[string]error{
		"hello": &ServiceError{Kind: KindUnprocessableText, Code: 422, Message: "nope"},
	}}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: svc})
	if err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}

	cr := report.Catalogs[0]
	if cr.Translated != 1 || cr.Failed != 1 {
		t.Fatalf("report = %+v", cr)
	}
	if cr.Status != StatusCreated {
		t.Fatalf("catalog must still be written, Status = %s", cr.Status)
	}

	out, err := po.ParseFile(pairs[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Entry("hello", ""); got == nil || got.MsgStr != "" {
		t.Fatalf("failed entry must stay untranslated: %#v", got)
	}
	if got := out.Entry("world", ""); got == nil || got.MsgStr != "[ru] world" {
		t.Fatalf("other entries must still be translated: %#v", got)
	}
}

func TestSyncAllFatalErrorStopsRun(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{fail: map[string]error{
		"hello": &ServiceError{Kind: KindKeyInvalid, Code: 401, Message: "bad key"},
		"world": &ServiceError{Kind: KindKeyInvalid, Code: 401, Message: "bad key"},
	}}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: svc})
	if err == nil {
		t.Fatal("fatal service error must fail the run")
	}
	if report.Catalogs[0].Status != StatusFailed {
		t.Fatalf("Status = %s, want %s", report.Catalogs[0].Status, StatusFailed)
	}
}

func TestSyncAllDryRun(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: svc, DryRun: true})
	if err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}

	if svc.calls != 0 {
		t.Fatalf("dry run called the service %d times", svc.calls)
	}
	if _, err := os.Stat(pairs[0].Target); !os.IsNotExist(err) {
		t.Fatal("dry run must not write files")
	}
	if report.Catalogs[0].Status != StatusCreated {
		t.Fatalf("dry run status = %s", report.Catalogs[0].Status)
	}
	if report.Catalogs[0].Missing != 2 {
		t.Fatalf("dry run counts = %+v", report.Catalogs[0])
	}
}

func TestSyncAllIdempotentWhenCurrent(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{Service: &fakeService{}}
	if _, err := SyncAll(context.Background(), pairs, "en", "ru", opts); err != nil {
		t.Fatal(err)
	}

	first, err := os.ReadFile(pairs[0].Target)
	if err != nil {
		t.Fatal(err)
	}

	pairs, err = locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}
	report, err := SyncAll(context.Background(), pairs, "en", "ru", opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.Catalogs[0].Status != StatusUnchanged {
		t.Fatalf("second run status = %s, want %s", report.Catalogs[0].Status, StatusUnchanged)
	}

	second, err := os.ReadFile(pairs[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("second run modified an up-to-date catalog")
	}
}

func TestSyncAllClearsFuzzyAfterTranslation(t *testing.T) {
	tgt := `msgid ""
msgstr ""
"Language: ru\n"

#, fuzzy
#| msgid "hello there"
msgid "hello"
msgstr "staryi perevod"

msgid "world"
msgstr "mir"
`
	root := setupLocale(t, syncSrc, tgt)
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: &fakeService{}})
	if err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}
	if report.Catalogs[0].Stale != 1 || report.Catalogs[0].Translated != 1 {
		t.Fatalf("report = %+v", report.Catalogs[0])
	}

	out, err := po.ParseFile(pairs[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	e := out.Entry("hello", "")
	if e == nil || e.MsgStr != "[ru] hello" {
		t.Fatalf("stale entry not retranslated: %#v", e)
	}
	if e.IsFuzzy() {
		t.Fatal("fuzzy flag must be cleared after translation")
	}
	if e.PreviousMsgID != "" {
		t.Fatal("previous msgid comment must be dropped after translation")
	}
}

func TestSyncAllLockFileDetectsUpstreamChange(t *testing.T) {
	root := setupLocale(t, syncSrc, "")
	lockDir := t.TempDir()

	lock, err := lockfile.Load(lockDir)
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Service: &fakeService{}, Lock: lock}

	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SyncAll(context.Background(), pairs, "en", "ru", opts); err != nil {
		t.Fatal(err)
	}

	// Simulate an upstream edit: the lock file remembers a different source
	// text for "hello" than the catalog now carries.
	lock.Update(lockfile.CatalogKey("ru/index.po"), "hello", "hello (old revision)")

	pairs, err = locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}
	svc := &fakeService{}
	opts.Service = svc
	report, err := SyncAll(context.Background(), pairs, "en", "ru", opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.Catalogs[0].Stale != 1 {
		t.Fatalf("lock mismatch must mark the entry stale: %+v", report.Catalogs[0])
	}
}

func TestSyncAllReportsParseFailure(t *testing.T) {
	root := setupLocale(t, "msgid \"broken\nmsgstr \"\"\n", "")
	pairs, err := locale.Pairs(root, "en", "ru")
	if err != nil {
		t.Fatal(err)
	}

	report, err := SyncAll(context.Background(), pairs, "en", "ru", Options{Service: &fakeService{}})
	if err != nil {
		t.Fatalf("parse failures are per-catalog, not run-fatal: %v", err)
	}
	cr := report.Catalogs[0]
	if cr.Status != StatusFailed {
		t.Fatalf("Status = %s", cr.Status)
	}
	var perr *po.ParseError
	if !errors.As(cr.Err, &perr) {
		t.Fatalf("Err = %v, want *pofile.ParseError", cr.Err)
	}
	if _, err := os.Stat(pairs[0].Target); !os.IsNotExist(err) {
		t.Fatal("failed pair must not produce output")
	}
}
