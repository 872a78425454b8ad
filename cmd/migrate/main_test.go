package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/storage/postgres"
)

type fakeMigrator struct {
	upSteps   []int
	downSteps []int
	version   int64
	applied   int
	plan      []postgres.MigrationState
	upErr     error
	closed    bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, nil
}

func (f *fakeMigrator) MigrationPlan(context.Context) ([]postgres.MigrationState, error) {
	return f.plan, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func runCLI(t *testing.T, fake *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()

	var (
		out     bytes.Buffer
		seenDSN string
	)
	open := func(_ context.Context, dsn string) (migrator, error) {
		seenDSN = dsn
		return fake, nil
	}
	err := newApp(&out, open).Run(append([]string{"migrate"}, args...))
	return out.String(), seenDSN, err
}

func TestMigrateUp(t *testing.T) {
	fake := &fakeMigrator{version: 2, applied: 2}

	out, dsn, err := runCLI(t, fake, "--dsn", "postgres://local/grocery", "up", "--steps", "2")
	require.NoError(t, err)

	assert.Equal(t, "postgres://local/grocery", dsn)
	assert.Equal(t, []int{2}, fake.upSteps)
	assert.Contains(t, out, "migrate up ok: version=2 applied=2")
	assert.True(t, fake.closed, "store must be closed")
}

func TestMigrateDownDefaultsToOneStep(t *testing.T) {
	fake := &fakeMigrator{version: 1, applied: 1}

	out, _, err := runCLI(t, fake, "--dsn", "postgres://local/grocery", "down")
	require.NoError(t, err)

	assert.Equal(t, []int{1}, fake.downSteps)
	assert.Contains(t, out, "migrate down ok: version=1 applied=1")
}

func TestMigrateStatusListsPlan(t *testing.T) {
	appliedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeMigrator{
		version: 1,
		applied: 1,
		plan: []postgres.MigrationState{
			{Version: 1, Name: "init", Applied: true, AppliedAt: appliedAt},
			{Version: 2, Name: "demo_catalog"},
		},
	}

	out, _, err := runCLI(t, fake, "--dsn", "postgres://local/grocery", "status")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "0001 init")
	assert.Contains(t, lines[0], "applied 2026-10-01T12:00:00Z")
	assert.Contains(t, lines[1], "0002 demo_catalog")
	assert.Contains(t, lines[1], "pending")
	assert.Equal(t, "migration status: version=1 applied=1", lines[2])
}

func TestMigrateReadsDSNFromEnvironment(t *testing.T) {
	t.Setenv(dsnEnvVar, "postgres://env/grocery")
	fake := &fakeMigrator{}

	_, dsn, err := runCLI(t, fake, "status")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/grocery", dsn)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv(dsnEnvVar, "")

	_, _, err := runCLI(t, &fakeMigrator{}, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), dsnEnvVar)
}

func TestMigrateUpFailure(t *testing.T) {
	fake := &fakeMigrator{upErr: errors.New("checksum mismatch")}

	_, _, err := runCLI(t, fake, "--dsn", "postgres://local/grocery", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate up failed: checksum mismatch")
	assert.True(t, fake.closed)
}

func TestMigrateOpenFailure(t *testing.T) {
	open := func(context.Context, string) (migrator, error) {
		return nil, errors.New("connection refused")
	}
	err := newApp(&bytes.Buffer{}, open).Run([]string{"migrate", "--dsn", "postgres://down/grocery", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres store")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func TestMigrateAgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("GROCERY_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	var out bytes.Buffer
	for _, args := range [][]string{{"up"}, {"status"}, {"down", "--steps", "1"}, {"up"}} {
		cmd := append([]string{"migrate", "--dsn", dsn}, args...)
		if err := newApp(&out, openStore).Run(cmd); err != nil {
			t.Skipf("postgres is not available for migrate integration test: %v", err)
		}
	}
	assert.Contains(t, out.String(), "migrate up ok")
}
