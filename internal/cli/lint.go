package cli

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cfncheck/cfncheck/internal/formatter"
	"github.com/cfncheck/cfncheck/internal/logger"
	"github.com/cfncheck/cfncheck/internal/validator"
)

// templateExtensions are the files picked up when a directory is linted.
var templateExtensions = []string{".yaml", ".yml", ".json", ".template"}

const stdinName = "<stdin>"

type lintFlags struct {
	params []string
	format string
	warn   bool
}

func newLintCommand(st *state) *cobra.Command {
	var f lintFlags
	cmd := &cobra.Command{
		Use:   "lint [file|dir|-]...",
		Short: "Check templates against the resource specification",
		Long: "Check templates against the resource specification.\n\n" +
			"Directories are scanned for " + strings.Join(templateExtensions, ", ") + " files; " +
			"\"-\" reads a template from standard input. The exit status is 2 when " +
			"any error is reported and 1 when linting could not run.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd, st, f, args)
		},
	}
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "runtime parameter value as Name=Value, repeatable")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output format: text or json (default from config)")
	cmd.Flags().BoolVar(&f.warn, "fail-on-warnings", false, "exit with status 2 on warnings too")
	return cmd
}

func runLint(cmd *cobra.Command, st *state, f lintFlags, args []string) error {
	opts := st.config.Options()
	for _, p := range f.params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return errors.Errorf("parameter %q must be Name=Value", p)
		}
		opts.Parameters[name] = value
	}
	format := st.config.Format
	if f.format != "" {
		format = f.format
	}
	if format != formatter.Text && format != formatter.JSON {
		return errors.Errorf("unknown output format %q", format)
	}

	table, err := st.table()
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	sources, err := collectSources(args, cmd.InOrStdin())
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	logger.Debugf("linting %d templates", len(sources))

	var (
		files []formatter.File
		fatal error
	)
	for _, r := range validator.LintAll(cmd.Context(), table, sources, opts) {
		if r.Err != nil {
			logger.Errorf("%s: %v", r.Name, r.Err)
			if fatal == nil {
				fatal = errors.Wrap(r.Err, r.Name)
			}
			continue
		}
		files = append(files, formatter.File{Name: r.Name, Diagnostics: r.Result.Diagnostics})
	}

	if err := formatter.Write(cmd.OutOrStdout(), format, files); err != nil {
		return errors.Wrap(err, "writing results")
	}
	errs, warnings := formatter.Summary(files)
	logger.Printf("%d errors, %d warnings in %d templates", errs, warnings, len(files))

	switch {
	case fatal != nil:
		return &ExitError{Code: 1, Err: fatal}
	case errs > 0, f.warn && warnings > 0:
		return errIssues
	}
	return nil
}

// collectSources reads every template named by args. Directories are walked
// for template files, which are then read concurrently; the result keeps the
// order of args and, within a directory, lexical order.
func collectSources(args []string, stdin io.Reader) ([]validator.Source, error) {
	var names []string
	readStdin := false
	for _, arg := range args {
		if arg == "-" {
			if readStdin {
				return nil, errors.New("standard input given more than once")
			}
			readStdin = true
			names = append(names, stdinName)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", arg)
		}
		if !info.IsDir() {
			names = append(names, arg)
			continue
		}
		found, err := scanDirectory(arg)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			logger.Warnf("no templates found in %s", arg)
		}
		names = append(names, found...)
	}

	sources := make([]validator.Source, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 8)

	for i, name := range names {
		sources[i].Name = name
		if name == stdinName {
			content, err := io.ReadAll(stdin)
			sources[i].Content, errs[i] = content, errors.Wrap(err, "reading standard input")
			continue
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, err := os.ReadFile(path)
			if err != nil {
				errs[i] = errors.Wrapf(err, "reading %s", path)
				return
			}
			sources[i].Content = content
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// scanDirectory lists the template files below root. Hidden directories are
// skipped.
func scanDirectory(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		for _, e := range templateExtensions {
			if ext == e {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", root)
	}
	return files, nil
}
