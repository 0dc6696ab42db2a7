package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

// upstream serves a schedule page whose date and status can change between calls
type upstream struct {
	mu      sync.Mutex
	forDate string
	status  int
	empty   bool
	extra   bool
	hits    int
}

func (u *upstream) set(forDate string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.forDate = forDate
	u.status = status
}

func (u *upstream) requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hits++

	if u.status != http.StatusOK {
		w.WriteHeader(u.status)
		return
	}

	rows := `
<tr><td>10:05</td><td>Гараж → Цех 3</td><td>204</td><td></td></tr>
<tr><td>8:15</td><td>Цех 3 → Гараж</td><td>101</td><td>через КПП-2</td></tr>
<tr><td>12:30</td><td>Склад - Столовая</td><td></td><td></td></tr>`
	if u.extra {
		rows += `
<tr><td>18:45</td><td>Гараж → Склад</td><td>7</td><td></td></tr>`
	}
	if u.empty {
		rows = ""
	}

	fmt.Fprintf(w, `<html><body><h1>Расписание автобусов на %s</h1><table>
<tr><td>Время</td><td>Маршрут</td><td>Автобусы</td><td>Примечание</td></tr>%s
</table></body></html>`, u.forDate, rows)
}

type testEnv struct {
	upstream *upstream
	config   string
	dataDir  string
}

func newTestEnv(t *testing.T, bundlePath string) *testEnv {
	t.Helper()

	up := &upstream{forDate: schedule.FormatForDate(time.Now()), status: http.StatusOK}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	config := filepath.Join(dir, "config.yml")

	content := fmt.Sprintf(`source:
  url: %s
fetch:
  timeout: 2s
  strategies:
    - label: direct
      template: "{target}"
cache:
  backend: file
  dir: %q
bundle:
  path: %q
log:
  level: error
`, server.URL, dataDir, bundlePath)

	if err := os.WriteFile(config, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return &testEnv{upstream: up, config: config, dataDir: dataDir}
}

func (e *testEnv) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--config", e.config), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeResult(t *testing.T, out string) *OutputResult {
	t.Helper()
	var result OutputResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	return &result
}

func recordTimes(records []*schedule.Record) []string {
	times := make([]string, len(records))
	for i, r := range records {
		times[i] = r.Time
	}
	return times
}

func TestShow_Live(t *testing.T) {
	env := newTestEnv(t, "")

	code, out, stderr := env.run("show", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	result := decodeResult(t, out)
	if result.Source != "live" || result.Count != 3 {
		t.Errorf("source = %q count = %d, want live with 3", result.Source, result.Count)
	}
	if got := strings.Join(recordTimes(result.Records), " "); got != "8:15 10:05 12:30" {
		t.Errorf("time order = %s, want natural order", got)
	}

	// Accepted result was persisted
	if _, err := os.Stat(filepath.Join(env.dataDir, "schedule_current.json")); err != nil {
		t.Errorf("current generation not persisted: %v", err)
	}
}

func TestShow_FilterAndSort(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "sort by bus",
			args: []string{"--sort", "bus"},
			want: "8:15 10:05 12:30",
		},
		{
			name: "from and to",
			args: []string{"--from", "гараж", "--to", "цех"},
			want: "10:05",
		},
		{
			name: "route shorthand",
			args: []string{"--route", "Цех → Гараж"},
			want: "8:15",
		},
		{
			name: "query",
			args: []string{"--query", "кпп"},
			want: "8:15",
		},
		{
			name: "time window",
			args: []string{"--between", "10-13"},
			want: "10:05 12:30",
		},
		{
			name: "nothing matches",
			args: []string{"--from", "проходная"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")

			args := append([]string{"show", "--format", "json"}, tt.args...)
			code, out, stderr := env.run(args...)
			if code != ExitSuccess {
				t.Fatalf("exit code = %d, stderr: %s", code, stderr)
			}

			result := decodeResult(t, out)
			if got := strings.Join(recordTimes(result.Records), " "); got != tt.want {
				t.Errorf("records = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShow_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad sort", []string{"show", "--sort", "route"}},
		{"bad format", []string{"show", "--format", "xml"}},
		{"bad window", []string{"show", "--between", "late"}},
		{"route with from", []string{"show", "--route", "a → b", "--from", "a"}},
		{"unexpected argument", []string{"show", "today"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")

			code, _, stderr := env.run(tt.args...)
			if code != ExitError {
				t.Errorf("exit code = %d, want %d", code, ExitError)
			}
			if !strings.Contains(stderr, "Error:") {
				t.Errorf("stderr = %q, want an error message", stderr)
			}
			if env.upstream.requests() != 0 {
				t.Error("invalid flags should fail before fetching")
			}
		})
	}
}

func TestShow_FallsBackToCache(t *testing.T) {
	env := newTestEnv(t, "")

	if code, _, stderr := env.run("refresh"); code != ExitSuccess {
		t.Fatalf("refresh exit code = %d, stderr: %s", code, stderr)
	}

	env.upstream.set(schedule.FormatForDate(time.Now()), http.StatusBadGateway)

	code, out, stderr := env.run("show", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	result := decodeResult(t, out)
	if result.Source != "cache" || result.Count != 3 {
		t.Errorf("source = %q count = %d, want cache with 3", result.Source, result.Count)
	}
	if result.Warning == "" {
		t.Error("expected a warning that live refresh failed")
	}
	if result.Stale {
		t.Error("cache captured moments ago should not be stale")
	}
}

func TestShow_NoData(t *testing.T) {
	env := newTestEnv(t, "")
	env.upstream.set("", http.StatusServiceUnavailable)

	code, out, stderr := env.run("show")
	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if out != "" {
		t.Errorf("stdout = %q, want nothing", out)
	}
	if !strings.Contains(stderr, "could not be loaded") {
		t.Errorf("stderr = %q, want user-facing failure message", stderr)
	}
}

func TestRefresh_ArchivesOnRollover(t *testing.T) {
	env := newTestEnv(t, "")
	today := schedule.FormatForDate(time.Now())
	tomorrow := schedule.FormatForDate(time.Now().AddDate(0, 0, 1))

	code, out, stderr := env.run("refresh")
	if code != ExitSuccess {
		t.Fatalf("refresh exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(out, "Fetched 3 departures for "+today) {
		t.Errorf("refresh output = %q", out)
	}
	if strings.Contains(out, "Archived") {
		t.Error("first refresh should not archive")
	}

	// Same day again: current is overwritten, nothing archived
	_, out, _ = env.run("refresh")
	if strings.Contains(out, "Archived") {
		t.Error("same-day refresh should not archive")
	}
	if !strings.Contains(out, "No changes since the last fetch.") {
		t.Errorf("same-day refresh output = %q, want change report", out)
	}

	env.upstream.set(tomorrow, http.StatusOK)
	_, out, _ = env.run("refresh")
	if !strings.Contains(out, "Archived the schedule for "+today) {
		t.Errorf("rollover refresh output = %q, want archival notice", out)
	}

	code, out, stderr = env.run("show", "--previous", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("show --previous exit code = %d, stderr: %s", code, stderr)
	}
	result := decodeResult(t, out)
	if result.ForDate != today || result.Generation != schedule.Previous {
		t.Errorf("previous view = %q (%s), want %q", result.ForDate, result.Generation, today)
	}
}

func TestRefresh_ReportsChanges(t *testing.T) {
	env := newTestEnv(t, "")

	if code, _, stderr := env.run("refresh"); code != ExitSuccess {
		t.Fatalf("refresh exit code = %d, stderr: %s", code, stderr)
	}

	env.upstream.mu.Lock()
	env.upstream.extra = true
	env.upstream.mu.Unlock()

	code, out, stderr := env.run("refresh")
	if code != ExitSuccess {
		t.Fatalf("refresh exit code = %d, stderr: %s", code, stderr)
	}
	for _, want := range []string{
		"Fetched 4 departures",
		"Changes since the last fetch: 1 added, 0 removed, 0 changed.",
		"  + 18:45 Гараж → Склад",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestShow_PreviousMissing(t *testing.T) {
	env := newTestEnv(t, "")

	code, _, stderr := env.run("show", "--previous")
	if code != ExitError || !strings.Contains(stderr, "no previous schedule") {
		t.Errorf("exit code = %d stderr = %q, want missing previous error", code, stderr)
	}
}

func TestRefresh_Failure(t *testing.T) {
	env := newTestEnv(t, "")
	env.upstream.set("", http.StatusNotFound)

	code, _, stderr := env.run("refresh")
	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if !strings.Contains(stderr, "direct: unexpected status code: 404") {
		t.Errorf("stderr = %q, want per-strategy failure", stderr)
	}
}

func TestScrape_ThenShowUsesBundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "public", "schedule.json")
	env := newTestEnv(t, bundle)

	code, out, stderr := env.run("scrape")
	if code != ExitSuccess {
		t.Fatalf("scrape exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(out, "Wrote 3 items to "+bundle) {
		t.Errorf("scrape output = %q", out)
	}
	if env.upstream.requests() != 1 {
		t.Fatalf("scrape made %d requests, want 1", env.upstream.requests())
	}

	code, out, stderr = env.run("show", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("show exit code = %d, stderr: %s", code, stderr)
	}
	if result := decodeResult(t, out); result.Source != "bundled" {
		t.Errorf("source = %q, want bundled", result.Source)
	}
	if env.upstream.requests() != 1 {
		t.Error("fresh bundle should make live fetch unnecessary")
	}
}

func TestScrape_NoRecords(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schedule.json")
	env := newTestEnv(t, "")
	env.upstream.mu.Lock()
	env.upstream.empty = true
	env.upstream.mu.Unlock()

	code, _, _ := env.run("scrape", "--out", out)
	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no bundle should be written for an empty page")
	}
}

func TestScrape_RequiresLocalFile(t *testing.T) {
	env := newTestEnv(t, "")

	code, _, stderr := env.run("scrape", "--out", "https://example.org/schedule.json")
	if code != ExitError || !strings.Contains(stderr, "local file") {
		t.Errorf("exit code = %d stderr = %q", code, stderr)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "")

	code, out, _ := env.run("status")
	if code != ExitSuccess {
		t.Fatalf("status exit code = %d", code)
	}
	if !strings.Contains(out, "current:  none") || !strings.Contains(out, "previous: none") {
		t.Errorf("empty status = %q", out)
	}

	env.run("refresh")

	code, out, _ = env.run("status", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("status exit code = %d", code)
	}

	var entries []StatusEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("status output is not valid JSON: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	cur := entries[0]
	if !cur.Present || cur.Records != 3 || cur.Stale || cur.CapturedAt == nil {
		t.Errorf("current entry = %+v", cur)
	}
	if entries[1].Present {
		t.Errorf("previous entry = %+v, want absent", entries[1])
	}
}

func TestDataDirFlag(t *testing.T) {
	env := newTestEnv(t, "")
	override := filepath.Join(t.TempDir(), "elsewhere")

	if code, _, stderr := env.run("refresh", "--data-dir", override); code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(override, "schedule_current.json")); err != nil {
		t.Errorf("--data-dir not honoured: %v", err)
	}
}

func TestStatus_SingleGeneration(t *testing.T) {
	env := newTestEnv(t, "")
	env.run("refresh")

	code, out, _ := env.run("status", "Current")
	if code != ExitSuccess {
		t.Fatalf("status exit code = %d", code)
	}
	if !strings.Contains(out, "current:") || strings.Contains(out, "previous:") {
		t.Errorf("status current = %q, want only the current line", out)
	}

	code, _, stderr := env.run("status", "tomorrow")
	if code != ExitError || !strings.Contains(stderr, "invalid generation") {
		t.Errorf("exit code = %d stderr = %q, want invalid generation error", code, stderr)
	}
}

func TestShow_PreviousWithCorruptCurrent(t *testing.T) {
	env := newTestEnv(t, "")
	today := schedule.FormatForDate(time.Now())

	env.run("refresh")
	env.upstream.set(schedule.FormatForDate(time.Now().AddDate(0, 0, 1)), http.StatusOK)
	env.run("refresh")

	current := filepath.Join(env.dataDir, "schedule_current.json")
	if err := os.WriteFile(current, []byte("{garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	code, out, stderr := env.run("show", "--previous", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if result := decodeResult(t, out); result.ForDate != today {
		t.Errorf("previous view = %q, want %q", result.ForDate, today)
	}
}
