// Package classmetrics invokes the external class-metric tool on a checked
// out tree and ingests its per-class CSV output.
package classmetrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/config"
	apperrors "github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/git"
	"github.com/rohankatakam/commitguru/internal/logging"
	"github.com/rohankatakam/commitguru/internal/models"
)

// ClassFileSuffix is appended to the output prefix by the tool
const ClassFileSuffix = "class.csv"

// Runner runs the class-metric executable
type Runner struct {
	executable string
	args       []string
	outputDir  string
	timeout    time.Duration
	logger     logrus.FieldLogger
}

// NewRunner creates a Runner from config
func NewRunner(cfg config.ClassMetricsConfig, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		executable: cfg.Executable,
		args:       cfg.Args,
		outputDir:  cfg.OutputDir,
		timeout:    cfg.Timeout,
		logger:     logger.WithField("component", "classmetrics"),
	}
}

// Run analyzes treeDir and returns one row per (file, class). Output files
// are prefixed with a digest of treeDir and label (usually the commit hash),
// so jobs sharing the output directory never touch each other's files.
func (r *Runner) Run(ctx context.Context, treeDir, label string) ([]models.ClassMetricRow, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, apperrors.FileSystemErrorf(err, "create class metric output dir")
	}
	prefix := OutputPrefix(r.outputDir, treeDir, label)
	defer r.cleanup(prefix)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append([]string{treeDir, prefix}, r.args...)
	cmd := exec.CommandContext(ctx, r.executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, apperrors.ExternalErrorf(err, "class metric tool failed: %s", strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(prefix + ClassFileSuffix)
	if err != nil {
		return nil, apperrors.ExternalErrorf(err, "class metric output missing")
	}
	defer f.Close()

	rows, err := ParseClassCSV(f, treeDir)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"label":    label,
		"classes":  len(rows),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Debug("class metrics collected")
	return rows, nil
}

// OutputPrefix is the path prefix handed to the tool for one run
func OutputPrefix(outputDir, treeDir, label string) string {
	return filepath.Join(outputDir, git.RepoDirName(treeDir)+"-"+label+"-")
}

func (r *Runner) cleanup(prefix string) {
	matches, _ := filepath.Glob(prefix + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

// ParseClassCSV reads the tool's class table. The "file" and "class" columns
// form the key; every other column is kept verbatim. Files under treeDir are
// made relative to it. A later duplicate key replaces the earlier row.
func ParseClassCSV(in io.Reader, treeDir string) ([]models.ClassMetricRow, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ParseErrorf("read class metric header: %v", err)
	}

	fileCol, classCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "file":
			fileCol = i
		case "class":
			classCol = i
		}
	}
	if fileCol < 0 || classCol < 0 {
		return nil, apperrors.ParseErrorf("class metric header lacks file/class columns: %v", header)
	}

	type key struct{ file, class string }
	byKey := make(map[key]models.ClassMetricRow)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.ParseErrorf("read class metric row: %v", err)
		}
		if len(record) <= fileCol || len(record) <= classCol {
			continue
		}

		row := models.ClassMetricRow{
			File:    relativeTo(treeDir, record[fileCol]),
			Class:   record[classCol],
			Metrics: make(map[string]string, len(header)-2),
		}
		for i, value := range record {
			if i == fileCol || i == classCol || i >= len(header) {
				continue
			}
			row.Metrics[strings.TrimSpace(header[i])] = value
		}
		byKey[key{row.File, row.Class}] = row
	}

	rows := make([]models.ClassMetricRow, 0, len(byKey))
	for _, row := range byKey {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].File != rows[j].File {
			return rows[i].File < rows[j].File
		}
		return rows[i].Class < rows[j].Class
	})
	return rows, nil
}

func relativeTo(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// String describes the command line for logs
func (r *Runner) String() string {
	return fmt.Sprintf("%s <tree> <prefix> %s", r.executable, strings.Join(r.args, " "))
}
