package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLogging() {
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".debrief")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryPipeline, CategoryTriage, CategoryResearch,
		CategorySynthesis, CategoryReasoning, CategorySearch, CategoryIngest,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".debrief", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	found := make(map[string]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.HasSuffix(e.Name(), "_"+string(cat)+".log") {
				found[string(cat)] = true
			}
		}
	}
	for _, cat := range categories {
		if !found[string(cat)] {
			t.Errorf("No log file created for category %s", cat)
		}
	}
}

// TestProductionModeNoLogs tests that no log files are written without debug_mode
func TestProductionModeNoLogs(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: false
`)

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("Expected debug mode to be disabled")
	}

	Get(CategoryPipeline).Info("should not be written")
	Get(CategoryTriage).Error("should not be written")

	if _, err := os.Stat(filepath.Join(tempDir, ".debrief", "logs")); !os.IsNotExist(err) {
		t.Error("Logs directory should not exist in production mode")
	}
}

// TestCategoryFilter tests that disabled categories stay silent
func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    pipeline: true
    search: false
`)

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsCategoryEnabled(CategoryPipeline) {
		t.Error("pipeline category should be enabled")
	}
	if IsCategoryEnabled(CategorySearch) {
		t.Error("search category should be disabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryTriage) {
		t.Error("unlisted category should default to enabled")
	}
}

// TestMissingConfigDefaultsToProduction tests graceful fallback without a config file
func TestMissingConfigDefaultsToProduction(t *testing.T) {
	tempDir := t.TempDir()

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize should not fail without config: %v", err)
	}
	if IsDebugMode() {
		t.Error("Missing config should default to production mode")
	}
}

// TestAuditTrail tests that audit events land in audit.jsonl
func TestAuditTrail(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if err := InitAudit(); err != nil {
		t.Fatalf("Failed to init audit trail: %v", err)
	}

	AuditStage(AuditStageStart, "abc-123", "triage", "")
	AuditService(AuditSearchRequest, "abc-123", map[string]interface{}{"query": "pip install fails"})
	CloseAudit()

	data, err := os.ReadFile(filepath.Join(tempDir, ".debrief", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read audit trail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 audit events, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"stage_start"`) || !strings.Contains(lines[0], "abc-123") {
		t.Errorf("Unexpected first audit event: %s", lines[0])
	}
	if !strings.Contains(lines[1], "pip install fails") {
		t.Errorf("Unexpected second audit event: %s", lines[1])
	}
}

// TestAuditNoopWithoutInit tests that Audit is safe before InitAudit
func TestAuditNoopWithoutInit(t *testing.T) {
	resetLogging()
	AuditStage(AuditStageError, "x", "research", "should be dropped")
}

// TestAnalysisLoggerCorrelation tests that the analysis ID shows up in entries
func TestAnalysisLoggerCorrelation(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetLogging()
	defer resetLogging()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	al := WithAnalysisID(CategoryPipeline, "run-42")
	al.Info("triage started")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".debrief", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	var content string
	for _, e := range entries {
		if strings.Contains(e.Name(), "pipeline") {
			data, err := os.ReadFile(filepath.Join(tempDir, ".debrief", "logs", e.Name()))
			if err != nil {
				t.Fatalf("Failed to read log: %v", err)
			}
			content = string(data)
		}
	}
	if !strings.Contains(content, "[analysis:run-42] triage started") {
		t.Errorf("Expected correlated entry, got: %s", content)
	}
}
