// Package locale enumerates catalog pairs under a documentation locale
// directory. Catalogs live at <root>/<lang>/LC_MESSAGES/**/*.po; the target
// tree mirrors the source tree with the language segment swapped.
package locale

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MessagesDir is the fixed directory under each language that holds catalogs.
const MessagesDir = "LC_MESSAGES"

// Pair is one source catalog and the path its target-language counterpart
// has or would have.
type Pair struct {
	// Source is the absolute path of the source-language catalog.
	Source string
	// Target is the corresponding target-language path. The file may not
	// exist yet; see TargetMissing.
	Target string
	// TargetMissing reports that no target catalog exists at Target.
	TargetMissing bool
	// Rel is the catalog path relative to the language's LC_MESSAGES
	// directory, slash-separated. It identifies the catalog in reports and
	// in the lock file.
	Rel string
}

// Pairs walks the source-language tree under root and returns one Pair per
// .po file found, in lexical walk order. A missing target catalog is not an
// error; it is reported through TargetMissing so the caller can create it.
// A missing or empty source tree yields an error, since there is nothing to
// synchronize from.
func Pairs(root, sourceLang, targetLang string) ([]Pair, error) {
	srcDir := filepath.Join(root, sourceLang, MessagesDir)
	tgtDir := filepath.Join(root, targetLang, MessagesDir)

	info, err := os.Stat(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no catalogs for source language %q: %s does not exist", sourceLang, srcDir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", srcDir)
	}

	var pairs []Pair
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".po") {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		target := filepath.Join(tgtDir, rel)
		missing := false
		if _, err := os.Stat(target); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			missing = true
		}

		pairs = append(pairs, Pair{
			Source:        path,
			Target:        target,
			TargetMissing: missing,
			Rel:           filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no .po catalogs found under %s", srcDir)
	}

	return pairs, nil
}
