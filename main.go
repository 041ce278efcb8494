// sphinxtr — updates gettext PO catalogs of a documentation build with
// machine translations for missing and stale entries.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/sphinx-contrib/sphinxtr/i18n"
	"github.com/sphinx-contrib/sphinxtr/lockfile"
	"github.com/sphinx-contrib/sphinxtr/locale"
	"github.com/sphinx-contrib/sphinxtr/sphinxconf"
	"github.com/sphinx-contrib/sphinxtr/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// cliArgs collects the root command's flags.
type cliArgs struct {
	configPath    string
	sourceLang    string
	targetLangs   []string
	lineWidth     int
	apiKey        string
	endpoint      string
	proxy         string
	timeout       time.Duration
	requestDelay  time.Duration
	maxConcurrent int
	maxRetries    int
	dryRun        bool
	verbose       bool
}

func newRootCmd() *cobra.Command {
	var a cliArgs

	root := &cobra.Command{
		Use:   "sphinxtr",
		Short: i18n.T("Update documentation PO catalogs with machine translations"),
		Long: i18n.T(`sphinxtr updates the gettext PO catalogs of a documentation build.

It reads the locale directory from the project configuration (conf.py or
sphinxtr.yaml), pairs each source-language catalog with its target-language
counterpart, translates entries that are missing or out of date, and rewrites
the catalogs deterministically. Entries whose source text disappeared are
kept as obsolete; existing translations are never discarded.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &a)
		},
	}

	f := root.Flags()
	f.StringVarP(&a.configPath, "config", "c", "", i18n.T("path to conf.py or sphinxtr.yaml (default: ./conf.py, ./source/conf.py, ./sphinxtr.yaml)"))
	f.StringVar(&a.sourceLang, "source-language", "", i18n.T("source language code (default: the config's language, or en)"))
	f.StringSliceVar(&a.targetLangs, "target-language", nil, i18n.T("target language code (repeatable)"))
	f.IntVarP(&a.lineWidth, "line-width", "w", 76, i18n.T("output line width; 0 or less disables wrapping"))
	f.StringVar(&a.apiKey, "api-key", os.Getenv("SPHINXTR_API_KEY"), i18n.T("translation API key (env SPHINXTR_API_KEY)"))
	f.StringVar(&a.endpoint, "endpoint", "", i18n.T("translation API endpoint override"))
	f.StringVar(&a.proxy, "proxy", "", i18n.T("proxy URL for API requests"))
	f.DurationVar(&a.timeout, "timeout", 60*time.Second, i18n.T("per-request timeout"))
	f.DurationVar(&a.requestDelay, "request-delay", 0, i18n.T("delay between API requests within one catalog"))
	f.IntVar(&a.maxConcurrent, "max-concurrent", 4, i18n.T("catalog pairs processed in parallel"))
	f.IntVar(&a.maxRetries, "max-retries", 3, i18n.T("retries for rate-limited or failed API requests"))
	f.BoolVar(&a.dryRun, "dry-run", false, i18n.T("classify and report without translating or writing"))
	f.BoolVarP(&a.verbose, "verbose", "v", false, i18n.T("verbose output"))

	root.MarkFlagRequired("target-language")

	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sphinxtr version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

func run(ctx context.Context, a *cliArgs) error {
	configPath := a.configPath
	if configPath == "" {
		var err error
		configPath, err = sphinxconf.Locate(".")
		if err != nil {
			return err
		}
	}

	cfg, err := sphinxconf.Load(configPath)
	if err != nil {
		return err
	}

	sourceLang := a.sourceLang
	if sourceLang == "" {
		sourceLang = cfg.Language
	}
	if sourceLang == "" {
		sourceLang = "en"
	}

	if err := validateLang(sourceLang); err != nil {
		return err
	}
	for _, lang := range a.targetLangs {
		if err := validateLang(lang); err != nil {
			return err
		}
		if lang == sourceLang {
			return fmt.Errorf(i18n.T("target language %s is the source language"), lang)
		}
	}

	if !a.dryRun && a.apiKey == "" {
		return errors.New(i18n.T("no API key: set --api-key or SPHINXTR_API_KEY"))
	}

	lock, err := lockfile.Load(configDir(cfg.Path))
	if err != nil {
		return err
	}

	if a.verbose {
		logInfo(i18n.T("config: %s"), cfg.Path)
		logInfo(i18n.T("locale directory: %s"), cfg.LocaleDir)
	}

	// Interrupt finishes the catalog in flight and stops; catalogs already
	// written stay valid.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts := translate.Options{
		Service: &translate.Client{
			APIKey:     a.apiKey,
			Endpoint:   a.endpoint,
			Proxy:      a.proxy,
			Timeout:    a.timeout,
			MaxRetries: a.maxRetries,
			Verbose:    a.verbose,
		},
		LineWidth:     a.lineWidth,
		MaxConcurrent: a.maxConcurrent,
		RequestDelay:  a.requestDelay,
		DryRun:        a.dryRun,
		Lock:          lock,
		OnLog: func(format string, args ...any) {
			if a.verbose {
				logInfo(format, args...)
			}
		},
		OnError: func(format string, args ...any) {
			logError(format, args...)
		},
	}
	if a.verbose {
		opts.OnProgress = func(catalog string, done, total int) {
			logInfo("  %s: %d/%d", catalog, done, total)
		}
	}

	failed := 0
	for _, targetLang := range a.targetLangs {
		if ctx.Err() != nil {
			logWarning(i18n.T("interrupted"))
			break
		}

		logInfo(i18n.T("synchronizing %s -> %s"), sourceLang, targetLang)

		pairs, err := locale.Pairs(cfg.LocaleDir, sourceLang, targetLang)
		if err != nil {
			return err
		}

		report, err := translate.SyncAll(ctx, pairs, sourceLang, targetLang, opts)
		printReport(targetLang, report, a.dryRun)
		failed += report.Failed()

		if err != nil {
			if ctx.Err() != nil {
				logWarning(i18n.T("interrupted"))
				break
			}
			return err
		}
	}

	if !a.dryRun {
		if err := lock.Save(); err != nil {
			logWarning(i18n.T("could not save lock file: %v"), err)
		}
	}

	if failed > 0 {
		return fmt.Errorf(i18n.N("%d catalog failed", "%d catalogs failed", failed), failed)
	}
	return nil
}

// printReport writes the per-catalog summary table to stderr.
func printReport(targetLang string, report *translate.Report, dryRun bool) {
	for _, c := range report.Catalogs {
		if c.Status == "" {
			continue // skipped after an interrupt
		}
		switch c.Status {
		case translate.StatusFailed:
			logError("%s [%s]: %v", c.Rel, targetLang, c.Err)
		case translate.StatusUnchanged:
			logInfo(i18n.T("%s [%s]: unchanged (%d current, %d obsolete)"),
				c.Rel, targetLang, c.Current, c.Obsolete)
		default:
			verb := i18n.T("updated")
			if c.Status == translate.StatusCreated {
				verb = i18n.T("created")
			}
			if dryRun {
				logInfo(i18n.T("%s [%s]: would be %s (%d missing, %d stale)"),
					c.Rel, targetLang, verb, c.Missing, c.Stale)
				continue
			}
			msg := fmt.Sprintf(i18n.T("%s [%s]: %s (%d translated)"),
				c.Rel, targetLang, verb, c.Translated)
			if c.Failed > 0 {
				logWarning("%s, %s", msg, fmt.Sprintf(i18n.N("%d entry failed", "%d entries failed", c.Failed), c.Failed))
			} else {
				logSuccess("%s", msg)
			}
		}
	}
}

// validateLang checks that a language code is a well-formed BCP 47 tag.
func validateLang(lang string) error {
	if _, err := language.Parse(lang); err != nil {
		return fmt.Errorf(i18n.T("invalid language code %q: %v"), lang, err)
	}
	return nil
}

func configDir(path string) string {
	if dir := filepath.Dir(path); dir != "" {
		return dir
	}
	return "."
}

func main() {
	i18n.Init("")

	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}
