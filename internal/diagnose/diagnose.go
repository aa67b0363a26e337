// Package diagnose implements the doctor subcommand: summarize a failed
// conversion and pack the artifacts a maintainer needs into
// diagnostic-bundle.zip.
package diagnose

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/taji/gm-kit/internal/sig"
	"github.com/taji/gm-kit/internal/state"
	"github.com/taji/gm-kit/internal/ux"
)

// BundleName is the zip artifact written into the output directory.
const BundleName = "diagnostic-bundle.zip"

// Run prints the failure summary for the conversion in outputDir and
// writes the diagnostic bundle.
func Run(outputDir string) error {
	st, err := state.Load(outputDir)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	switch st.Status {
	case state.StatusFailed:
		renderFailure(st)
	case state.StatusInProgress:
		fmt.Printf("Conversion is in progress (phase %d, step %s). Nothing to diagnose yet.\n",
			st.CurrentPhase, st.CurrentStep)
		return nil
	default:
		fmt.Printf("Conversion status is %q. Nothing to diagnose.\n", st.Status)
		return nil
	}

	bundleID := uuid.New().String()
	path, err := writeBundle(outputDir, st, bundleID)
	if err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	fmt.Printf("\nDiagnostic bundle %s written to %s\n", bundleID[:8], path)
	return nil
}

func renderFailure(st *state.Conversion) {
	fmt.Printf("%s%s══ Doctor: conversion failed at phase %d ══%s\n\n", ux.Bold, ux.Red, st.CurrentPhase, ux.Reset)
	if st.Error != nil {
		fmt.Printf("  %s\n", st.Error.Message)
		if st.Error.Step != "" {
			fmt.Printf("  step:       %s\n", st.Error.Step)
		}
		fmt.Printf("  code:       %s\n", st.Error.Code)
		if st.Error.Suggestion != "" {
			fmt.Printf("  suggestion: %s\n", st.Error.Suggestion)
		}
	}
	if pr, ok := st.PhaseResults[strconv.Itoa(st.CurrentPhase)]; ok {
		for _, e := range pr.Errors {
			fmt.Printf("  error:      %s\n", e)
		}
		for _, w := range pr.Warnings {
			fmt.Printf("  warning:    %s\n", w)
		}
	}
}

// bundleFiles are the artifacts worth shipping with a failure report,
// in preference order. Missing files are skipped.
func bundleFiles(st *state.Conversion) []string {
	files := []string{
		state.FileName,
		"metadata.json",
		sig.MappingFileName,
		"toc-extracted.txt",
		"callout_config.json",
	}
	// The newest phase markdown shows where processing got to.
	for n := 8; n >= 4; n-- {
		for k, pr := range st.PhaseResults {
			if k == strconv.Itoa(n) && pr.OutputFile != "" {
				files = append(files, pr.OutputFile)
				return files
			}
		}
	}
	return files
}

func writeBundle(outputDir string, st *state.Conversion, bundleID string) (string, error) {
	path := filepath.Join(outputDir, BundleName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if w, err := zw.Create("bundle-id.txt"); err == nil {
		io.WriteString(w, bundleID+"\n")
	}
	for _, name := range bundleFiles(st) {
		src := filepath.Join(outputDir, filepath.FromSlash(name))
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return "", err
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return path, nil
}
