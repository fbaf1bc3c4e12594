// Package redact masks credentials in text before it is persisted, using
// the gitleaks rule set.
package redact

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
)

// Detector finds secrets in text.
type Detector func(content string) ([]report.Finding, error)

// GitleaksDetector scans with the default gitleaks configuration. A fresh
// detector is built per call since gitleaks detectors keep per-scan state.
func GitleaksDetector(content string) ([]report.Finding, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	return d.DetectString(content), nil
}

// Redactor replaces every detected secret with [REDACTED:<rule-id>].
type Redactor struct {
	enabled bool
	detect  Detector
	logger  *logging.Logger
}

// New returns a Redactor. When enabled is false Redact returns its input.
func New(enabled bool, logger *logging.Logger) *Redactor {
	return NewWithDetector(enabled, GitleaksDetector, logger)
}

// NewWithDetector returns a Redactor using d.
func NewWithDetector(enabled bool, d Detector, logger *logging.Logger) *Redactor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Redactor{enabled: enabled, detect: d, logger: logger.Named("redact")}
}

// Redact returns text with secrets masked. Detection failures are logged
// and the text is returned unchanged.
func (r *Redactor) Redact(ctx context.Context, text string) string {
	if !r.enabled || text == "" {
		return text
	}
	findings, err := r.detect(text)
	if err != nil {
		r.logger.Warn(ctx, "secret detection failed, storing content unchanged", zap.Error(err))
		return text
	}
	if len(findings) == 0 {
		return text
	}

	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		rules = append(rules, f.RuleID)
	}
	r.logger.Info(ctx, "secrets redacted", zap.Int("count", len(findings)), zap.Strings("rules", rules))
	return Apply(text, findings)
}

// Apply replaces each finding's secret in text. Longer secrets are
// replaced first so that a secret containing another is masked whole.
func Apply(text string, findings []report.Finding) string {
	sorted := make([]report.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Secret != "" {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Secret) > len(sorted[j].Secret) })

	for _, f := range sorted {
		text = strings.ReplaceAll(text, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return text
}
