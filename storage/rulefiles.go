package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"argus/core"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// maxRuleFileSize rejects pathologically large rule files
const maxRuleFileSize = 1024 * 1024 // 1MB

// ruleFile is the on-disk shape: either a single rule document or a
// top-level "rules" list.
type ruleFile struct {
	Rules []core.Rule `yaml:"rules"`
}

// LoadRuleFiles reads every *.yaml / *.yml file in dir and returns the
// valid rules it finds. Invalid rules are skipped with a logged warning
// so one bad file cannot block startup.
func LoadRuleFiles(dir string, logger *zap.SugaredLogger) ([]core.Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rule directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var rules []core.Rule
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := loadRuleFile(path)
		if err != nil {
			logger.Warnw("Skipping unreadable rule file",
				"file", path,
				"error", err)
			continue
		}
		for _, rule := range loaded {
			if err := rule.Validate(); err != nil {
				logger.Warnw("Skipping invalid rule from file",
					"file", path,
					"rule_id", rule.ID,
					"error", err)
				continue
			}
			if !core.IsValidWindow(rule.Throttle) && rule.Throttle != "" {
				logger.Warnw("Rule throttle does not parse; default window will apply",
					"file", path,
					"rule_id", rule.ID,
					"throttle", rule.Throttle)
			}
			rules = append(rules, rule)
		}
	}

	logger.Infof("Loaded %d rules from %s", len(rules), dir)
	return rules, nil
}

func loadRuleFile(path string) ([]core.Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxRuleFileSize {
		return nil, fmt.Errorf("rule file exceeds maximum size of %d bytes", maxRuleFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Try the list form first, then a single rule document
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err == nil && len(rf.Rules) > 0 {
		return rf.Rules, nil
	}

	var single core.Rule
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if single.ID == "" {
		return nil, fmt.Errorf("rule file contains neither a rules list nor a rule document")
	}
	return []core.Rule{single}, nil
}
