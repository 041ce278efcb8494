// Package merge implements catalog synchronization: it compares a
// source-language catalog against its target-language counterpart,
// classifies every entry, and builds the merged target catalog,
// equivalent to the msgmerge utility.
package merge

import (
	po "github.com/sphinx-contrib/sphinxtr/pofile"
)

// Status classifies a source entry's counterpart in the target catalog.
type Status string

const (
	// StatusCurrent: translation present, not fuzzy, source text unchanged.
	StatusCurrent Status = "current"
	// StatusMissing: no corresponding target entry exists yet.
	StatusMissing Status = "missing"
	// StatusNeedsTranslation: target entry exists but is fuzzy, empty,
	// or out of sync with the current source text.
	StatusNeedsTranslation Status = "needs-translation"
)

// Options controls classification.
type Options struct {
	// SourceChanged reports whether the source text of a matched entry
	// changed since its translation was produced (e.g. from a lock file
	// checksum). May be nil, in which case only the entry's own
	// previous-msgid comment is consulted.
	SourceChanged func(e *po.Entry) bool
}

// Result is the outcome of synchronizing one catalog pair.
type Result struct {
	// File is the merged target catalog: source entries in source order,
	// followed by obsolete target-only entries.
	File *po.File
	// Pending are the entries of File classified missing or needs-translation,
	// in file order.
	Pending []*po.Entry
	// Status maps each non-obsolete entry of File to its classification.
	Status map[*po.Entry]Status

	Current  int
	Missing  int
	Stale    int
	Obsolete int
}

// Sync merges a target catalog with its source counterpart. tgt may be nil
// when the target catalog does not exist yet; all source entries are then
// classified missing. Neither input is mutated.
func Sync(src, tgt *po.File, lang string, opts Options) *Result {
	result := &Result{
		File:   po.NewFile(),
		Status: make(map[*po.Entry]Status),
	}

	// Keep the target's header so translator metadata survives; create one
	// from the source header for brand-new catalogs.
	if tgt != nil && tgt.Header != nil && tgt.Header.MsgStr != "" {
		header := *tgt.Header
		result.File.Header = &header
	} else {
		result.File.Header = po.MakeHeader(src, lang)
	}
	if src != nil && src.Header != nil {
		if d := src.HeaderField("POT-Creation-Date"); d != "" {
			result.File.SetHeaderField("POT-Creation-Date", d)
		}
	}

	nplurals := result.File.Nplurals(lang)

	// Index existing target entries by identity.
	existing := make(map[string]*po.Entry)
	if tgt != nil {
		for _, e := range tgt.Entries {
			if !e.Obsolete {
				existing[e.Key()] = e
			}
		}
	}

	matched := make(map[string]bool)

	for _, srcEntry := range src.Entries {
		if srcEntry.MsgID == "" || srcEntry.Obsolete {
			continue
		}

		tgtEntry := existing[srcEntry.Key()]
		status := classify(srcEntry, tgtEntry, nplurals, opts)

		merged := &po.Entry{
			ExtractedComments: srcEntry.ExtractedComments,
			References:        srcEntry.References,
			MsgCtxt:           srcEntry.MsgCtxt,
			MsgID:             srcEntry.MsgID,
			MsgIDPlural:       srcEntry.MsgIDPlural,
			MsgStrPlural:      make(map[int]string),
		}
		if tgtEntry != nil {
			merged.TranslatorComments = tgtEntry.TranslatorComments
			merged.PreviousMsgID = tgtEntry.PreviousMsgID
			merged.Flags = mergeFlags(tgtEntry.Flags, srcEntry.Flags)
			merged.MsgStr = tgtEntry.MsgStr
			for idx, form := range tgtEntry.MsgStrPlural {
				merged.MsgStrPlural[idx] = form
			}
		} else {
			merged.Flags = append([]string(nil), srcEntry.Flags...)
		}

		// Plural entries always carry all their msgstr[N] slots, filled or
		// not, so the serialized form stays well formed.
		if merged.MsgIDPlural != "" {
			for i := 0; i < nplurals; i++ {
				if _, ok := merged.MsgStrPlural[i]; !ok {
					merged.MsgStrPlural[i] = ""
				}
			}
		}

		matched[srcEntry.Key()] = true
		result.File.Entries = append(result.File.Entries, merged)
		result.Status[merged] = status

		switch status {
		case StatusCurrent:
			result.Current++
		case StatusMissing:
			result.Missing++
			result.Pending = append(result.Pending, merged)
		case StatusNeedsTranslation:
			result.Stale++
			result.Pending = append(result.Pending, merged)
		}
	}

	// Target entries whose source counterpart is gone are kept as obsolete,
	// preserving translator history.
	if tgt != nil {
		for _, e := range tgt.Entries {
			if e.MsgID == "" {
				continue
			}
			if e.Obsolete {
				obsolete := *e
				result.File.Entries = append(result.File.Entries, &obsolete)
				result.Obsolete++
				continue
			}
			if !matched[e.Key()] {
				obsolete := *e
				obsolete.Obsolete = true
				obsolete.References = nil
				result.File.Entries = append(result.File.Entries, &obsolete)
				result.Obsolete++
			}
		}
	}

	return result
}

// classify assigns exactly one status to a source entry's counterpart.
// Plural entries are classified as a unit: any empty plural slot makes the
// whole entry stale.
func classify(srcEntry, tgtEntry *po.Entry, nplurals int, opts Options) Status {
	if tgtEntry == nil {
		return StatusMissing
	}
	if tgtEntry.IsFuzzy() {
		return StatusNeedsTranslation
	}
	if srcEntry.MsgIDPlural != "" {
		if len(tgtEntry.MsgStrPlural) < nplurals {
			return StatusNeedsTranslation
		}
		for _, form := range tgtEntry.MsgStrPlural {
			if form == "" {
				return StatusNeedsTranslation
			}
		}
	} else if tgtEntry.MsgStr == "" {
		return StatusNeedsTranslation
	}
	// The previous-msgid comment records the source text the translation
	// was made against; a mismatch means the source changed upstream.
	if tgtEntry.PreviousMsgID != "" && tgtEntry.PreviousMsgID != srcEntry.MsgID {
		return StatusNeedsTranslation
	}
	if opts.SourceChanged != nil && opts.SourceChanged(tgtEntry) {
		return StatusNeedsTranslation
	}
	return StatusCurrent
}

// mergeFlags combines flags from the target and source entries, preferring
// source format flags while keeping target-specific flags like "fuzzy".
func mergeFlags(tgtFlags, srcFlags []string) []string {
	flagSet := make(map[string]bool)

	for _, f := range tgtFlags {
		flagSet[f] = true
	}
	for _, f := range srcFlags {
		flagSet[f] = true
	}

	var result []string
	// Put fuzzy first if present
	if flagSet["fuzzy"] {
		result = append(result, "fuzzy")
	}
	for _, f := range append(append([]string(nil), tgtFlags...), srcFlags...) {
		if f != "fuzzy" && flagSet[f] {
			result = append(result, f)
			flagSet[f] = false
		}
	}

	return result
}
