package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger_Formats(t *testing.T) {
	testCases := []struct {
		format string
		json   bool
	}{
		{format: "", json: false},
		{format: "text", json: false},
		{format: " JSON ", json: true},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			logger := log.New()
			if err := setupLogger(logger, tc.format, "debug"); err != nil {
				t.Fatalf("setupLogger failed: %v", err)
			}

			_, isJSON := logger.Formatter.(*log.JSONFormatter)
			if isJSON != tc.json {
				t.Fatalf("format %q: json formatter = %v, want %v", tc.format, isJSON, tc.json)
			}
			if logger.GetLevel() != log.DebugLevel {
				t.Fatalf("expected debug level, got %s", logger.GetLevel())
			}
		})
	}
}

func TestSetupLogger_DefaultLevel(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.TraceLevel)

	if err := setupLogger(logger, "text", ""); err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}

func TestSetupLogger_Invalid(t *testing.T) {
	if err := setupLogger(log.New(), "xml", "info"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if err := setupLogger(log.New(), "text", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
