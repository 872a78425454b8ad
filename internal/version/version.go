package version

import "fmt"

// Заполняются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion — версия сборки для health-ответов и логов.
func GetVersion() string { return version }

// GetCommit — commit сборки.
func GetCommit() string { return commit }

// GetDate — дата сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
