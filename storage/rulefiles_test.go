package storage

import (
	"os"
	"path/filepath"
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const rulesListYAML = `rules:
  - id: brute-force
    name: Brute force detection
    enabled: true
    severity: high
    conditions:
      - field: action
        operator: equals
        value: login_failure
    threshold:
      count: 5
      window: 5m
      group_by: actor
    throttle: 10m
  - id: priv-esc
    name: Privilege escalation
    enabled: true
    severity: critical
    conditions:
      - field: action
        operator: equals
        value: role_change
`

const singleRuleYAML = `id: exfil
name: Large download
enabled: true
severity: medium
conditions:
  - field: fields.bytes
    operator: greater_than
    value: 100000000
`

func TestLoadRuleFilesList(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "rules.yaml", rulesListYAML)

	rules, err := LoadRuleFiles(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "brute-force", rules[0].ID)
	require.NotNil(t, rules[0].Threshold)
	assert.Equal(t, 5, rules[0].Threshold.Count)
	assert.Equal(t, "actor", rules[0].Threshold.GroupBy)
	assert.Equal(t, "priv-esc", rules[1].ID)
}

func TestLoadRuleFilesSingleDocument(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "exfil.yml", singleRuleYAML)

	rules, err := LoadRuleFiles(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "exfil", rules[0].ID)
	assert.Equal(t, core.OpGreaterThan, rules[0].Conditions[0].Operator)
}

func TestLoadRuleFilesSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "good.yaml", singleRuleYAML)
	writeRuleFile(t, dir, "broken.yaml", "{{not yaml")
	writeRuleFile(t, dir, "invalid.yaml", "id: no-conditions\nname: Missing conditions\nseverity: low\n")

	rules, err := LoadRuleFiles(dir, zap.NewNop().Sugar())
	require.NoError(t, err, "bad files are skipped, not fatal")
	require.Len(t, rules, 1)
	assert.Equal(t, "exfil", rules[0].ID)
}

func TestLoadRuleFilesIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "readme.txt", "not a rule")
	writeRuleFile(t, dir, "rule.yaml", singleRuleYAML)

	rules, err := LoadRuleFiles(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestLoadRuleFilesMissingDir(t *testing.T) {
	rules, err := LoadRuleFiles(filepath.Join(t.TempDir(), "nope"), zap.NewNop().Sugar())
	assert.NoError(t, err, "a missing rules directory is not an error")
	assert.Empty(t, rules)
}

func TestLoadRuleFilesDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "b.yaml", singleRuleYAML)
	writeRuleFile(t, dir, "a.yaml", "id: first\nname: First\nseverity: low\nconditions:\n  - field: action\n    operator: exists\n")

	rules, err := LoadRuleFiles(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "first", rules[0].ID, "files load in lexical order")
}
