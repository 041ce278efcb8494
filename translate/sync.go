package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sphinx-contrib/sphinxtr/lockfile"
	"github.com/sphinx-contrib/sphinxtr/locale"
	"github.com/sphinx-contrib/sphinxtr/merge"
	po "github.com/sphinx-contrib/sphinxtr/pofile"
)

// Options controls catalog synchronization.
type Options struct {
	// Service obtains machine translations. Required unless DryRun is set.
	Service Service
	// LineWidth is the output wrap width. Zero or less disables wrapping.
	LineWidth int
	// MaxConcurrent is the number of catalog pairs processed in parallel.
	// Zero or less means sequential.
	MaxConcurrent int
	// RequestDelay is a pause inserted between service calls within one
	// catalog, to spread request load.
	RequestDelay time.Duration
	// DryRun classifies and reports without calling the service or writing
	// any file.
	DryRun bool
	// Lock tracks source-text checksums across runs. May be nil.
	Lock *lockfile.LockFile
	// OnProgress is called after each translated entry of a catalog.
	OnProgress func(catalog string, done, total int)
	// OnLog emits log messages during synchronization.
	OnLog func(format string, args ...any)
	// OnError emits error messages during synchronization.
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// CatalogStatus is the outcome for one catalog pair.
type CatalogStatus string

const (
	// StatusUpdated: the target catalog was rewritten with changes.
	StatusUpdated CatalogStatus = "updated"
	// StatusCreated: the target catalog did not exist and was created.
	StatusCreated CatalogStatus = "created"
	// StatusUnchanged: the target catalog was already up to date.
	StatusUnchanged CatalogStatus = "unchanged"
	// StatusFailed: the pair could not be processed; the existing target
	// file was left untouched.
	StatusFailed CatalogStatus = "failed"
)

// CatalogReport summarizes one catalog pair.
type CatalogReport struct {
	// Rel identifies the catalog relative to LC_MESSAGES.
	Rel    string
	Status CatalogStatus

	Current  int
	Missing  int
	Stale    int
	Obsolete int

	// Translated is how many pending entries were translated; Failed is how
	// many could not be.
	Translated int
	Failed     int

	// Err is set when Status is StatusFailed.
	Err error
}

// Report aggregates the whole run.
type Report struct {
	Catalogs []CatalogReport
}

// Failed returns the number of catalog pairs that failed.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Catalogs {
		if c.Status == StatusFailed {
			n++
		}
	}
	return n
}

// EntriesFailed returns the number of entries whose translation failed
// across all catalogs.
func (r *Report) EntriesFailed() int {
	n := 0
	for _, c := range r.Catalogs {
		n += c.Failed
	}
	return n
}

// SyncAll synchronizes every catalog pair, processing up to
// opts.MaxConcurrent pairs in parallel. Entry-level translation failures are
// isolated: the affected entry stays untranslated and the catalog is still
// written. A fatal service failure (invalid key, exhausted quota) cancels
// the remaining work.
func SyncAll(ctx context.Context, pairs []locale.Pair, sourceLang, targetLang string, opts Options) (*Report, error) {
	report := &Report{Catalogs: make([]CatalogReport, len(pairs))}
	for i, pair := range pairs {
		// Pairs skipped after cancellation keep an empty status.
		report.Catalogs[i] = CatalogReport{Rel: pair.Rel}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var fatalErr error
	var fatalOnce sync.Once

	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(i int, pair locale.Pair) {
			defer func() {
				<-sem
				wg.Done()
			}()

			report.Catalogs[i] = syncPair(ctx, pair, sourceLang, targetLang, opts)

			if err := report.Catalogs[i].Err; err != nil {
				var serr *ServiceError
				if errors.As(err, &serr) && serr.Fatal() {
					fatalOnce.Do(func() {
						fatalErr = err
						cancel()
					})
				}
			}
		}(i, pair)
	}

	wg.Wait()

	if fatalErr != nil {
		return report, fatalErr
	}
	if err := ctx.Err(); err != nil && errors.Is(err, context.Canceled) {
		return report, err
	}
	return report, nil
}

// syncPair processes one catalog pair end to end: parse, classify, translate
// what is pending, and write the merged catalog atomically.
func syncPair(ctx context.Context, pair locale.Pair, sourceLang, targetLang string, opts Options) CatalogReport {
	cr := CatalogReport{Rel: pair.Rel}

	fail := func(err error) CatalogReport {
		cr.Status = StatusFailed
		cr.Err = err
		opts.logError("%s: %v", pair.Rel, err)
		return cr
	}

	src, err := po.ParseFile(pair.Source)
	if err != nil {
		return fail(err)
	}

	var tgt *po.File
	if !pair.TargetMissing {
		tgt, err = po.ParseFile(pair.Target)
		if err != nil {
			return fail(err)
		}
	}

	catalogKey := lockfile.CatalogKey(targetLang + "/" + pair.Rel)

	var sourceChanged func(e *po.Entry) bool
	if opts.Lock != nil {
		sourceChanged = func(e *po.Entry) bool {
			return opts.Lock.IsChanged(catalogKey, lockfile.EntryKey(e.MsgID, e.MsgCtxt),
				lockfile.EntryContent(e.MsgID, e.MsgIDPlural))
		}
	}

	result := merge.Sync(src, tgt, targetLang, merge.Options{SourceChanged: sourceChanged})
	cr.Current = result.Current
	cr.Missing = result.Missing
	cr.Stale = result.Stale
	cr.Obsolete = result.Obsolete

	if opts.DryRun {
		cr.Status = StatusUnchanged
		if len(result.Pending) > 0 || pair.TargetMissing {
			cr.Status = StatusUpdated
			if pair.TargetMissing {
				cr.Status = StatusCreated
			}
		}
		opts.log("%s: %d current, %d missing, %d stale, %d obsolete (dry run)",
			pair.Rel, cr.Current, cr.Missing, cr.Stale, cr.Obsolete)
		return cr
	}

	nplurals := result.File.Nplurals(targetLang)

	for done, entry := range result.Pending {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if done > 0 && opts.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return fail(ctx.Err())
			case <-time.After(opts.RequestDelay):
			}
		}

		if err := translateEntry(ctx, entry, sourceLang, targetLang, nplurals, opts.Service); err != nil {
			cr.Failed++
			opts.logError("%s: %q: %v", pair.Rel, truncate(entry.MsgID, 60), err)

			var serr *ServiceError
			if errors.As(err, &serr) && serr.Fatal() {
				return fail(err)
			}
			continue
		}

		cr.Translated++
		if opts.Lock != nil {
			opts.Lock.Update(catalogKey, lockfile.EntryKey(entry.MsgID, entry.MsgCtxt),
				lockfile.EntryContent(entry.MsgID, entry.MsgIDPlural))
		}
		if opts.OnProgress != nil {
			opts.OnProgress(pair.Rel, done+1, len(result.Pending))
		}
	}

	// Record the source text of entries already current so the lock file
	// converges on first run, and drop keys for entries that are gone.
	if opts.Lock != nil {
		var keys []string
		for entry, status := range result.Status {
			key := lockfile.EntryKey(entry.MsgID, entry.MsgCtxt)
			keys = append(keys, key)
			if status == merge.StatusCurrent {
				opts.Lock.Update(catalogKey, key, lockfile.EntryContent(entry.MsgID, entry.MsgIDPlural))
			}
		}
		opts.Lock.Clean(catalogKey, keys)
	}

	if cr.Translated > 0 {
		result.File.SetHeaderField("PO-Revision-Date", time.Now().UTC().Format("2006-01-02 15:04+0000"))
	}

	var buf bytes.Buffer
	if err := result.File.Write(&buf, opts.LineWidth); err != nil {
		return fail(fmt.Errorf("serializing %s: %w", pair.Target, err))
	}

	if !pair.TargetMissing {
		existing, err := os.ReadFile(pair.Target)
		if err == nil && bytes.Equal(existing, buf.Bytes()) {
			cr.Status = StatusUnchanged
			opts.log("%s: up to date", pair.Rel)
			return cr
		}
	}

	if err := result.File.WriteFile(pair.Target, opts.LineWidth); err != nil {
		return fail(err)
	}

	cr.Status = StatusUpdated
	if pair.TargetMissing {
		cr.Status = StatusCreated
	}
	opts.log("%s: %s (%d translated, %d failed)", pair.Rel, cr.Status, cr.Translated, cr.Failed)
	return cr
}

// translateEntry fills in the entry's translation slots and clears staleness
// markers. For plural entries, the singular source text fills slot 0 and the
// plural source text fills the remaining slots; the service contract is
// plain text in, text out, so finer plural distinctions are left fuzzy-free
// for a translator to refine.
func translateEntry(ctx context.Context, entry *po.Entry, sourceLang, targetLang string, nplurals int, svc Service) error {
	if svc == nil {
		return fmt.Errorf("no translation service configured")
	}

	if entry.MsgIDPlural == "" {
		translated, err := svc.Translate(ctx, entry.MsgID, sourceLang, targetLang)
		if err != nil {
			return err
		}
		entry.MsgStr = translated
	} else {
		singular, err := svc.Translate(ctx, entry.MsgID, sourceLang, targetLang)
		if err != nil {
			return err
		}
		plural, err := svc.Translate(ctx, entry.MsgIDPlural, sourceLang, targetLang)
		if err != nil {
			return err
		}
		if entry.MsgStrPlural == nil {
			entry.MsgStrPlural = make(map[int]string)
		}
		entry.MsgStrPlural[0] = singular
		for i := 1; i < nplurals; i++ {
			entry.MsgStrPlural[i] = plural
		}
	}

	entry.SetFuzzy(false)
	entry.PreviousMsgID = ""
	return nil
}
