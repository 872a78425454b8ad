package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/grocery-oms/internal/service/grpc"
)

const scenarioMetric = "scenario"

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCancel loadMode = "create-pay-cancel"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	rps           float64
	mode          loadMode
	cancelRate    int
	users         []string
	products      []string
	quantity      int
	paymentMethod domain.PaymentMethod
	outputPath    string
}

// orderCaller — часть grpcsvc.Client, которая нужна сценариям.
type orderCaller interface {
	Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (map[string]any, error)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}
	stats.calls++
	if code != codes.OK {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(method string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (s *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}
	return methodReport{
		Calls:     s.calls,
		Success:   s.calls - s.failed,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}

	if scenario, ok := result.Methods[scenarioMetric]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "loadtest",
		Usage:  "drive order scenarios against the grocery order service",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "localhost:50051", Usage: "gRPC target address"},
			&cli.IntFlag{Name: "total", Value: 400, Usage: "scenarios to execute; with --duration only used when set explicitly"},
			&cli.DurationFlag{Name: "duration", Usage: "optional time-based run duration (e.g. 10m)"},
			&cli.IntFlag{Name: "concurrency", Value: 40, Usage: "number of concurrent workers"},
			&cli.IntFlag{Name: "connections", Value: 4, Usage: "number of gRPC client connections"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-RPC timeout"},
			&cli.Float64Flag{Name: "rps", Usage: "scenario start rate limit; 0 = unlimited"},
			&cli.StringFlag{Name: "mode", Value: string(modeCreate), Usage: "create | create-pay | create-pay-cancel"},
			&cli.IntFlag{Name: "cancel-rate", Usage: "cancel probability in percent for create-pay mode (0..100)"},
			&cli.StringSliceFlag{Name: "users", Value: cli.NewStringSlice("testuser"), Usage: "user ids, rotated per scenario"},
			&cli.StringSliceFlag{Name: "products", Value: cli.NewStringSlice("fresh-milk"), Usage: "product ids put in every order"},
			&cli.IntFlag{Name: "quantity", Value: 1, Usage: "quantity per product line"},
			&cli.StringFlag{Name: "payment-method", Value: string(domain.PaymentMethodCOD), Usage: "CARD | UPI | COD"},
			&cli.StringFlag{Name: "output", Usage: "optional JSON report output file path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromCLI(c)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(c.Context, cfg, c.App.Writer)
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func configFromCLI(c *cli.Context) (config, error) {
	cfg := config{
		addr:        strings.TrimSpace(c.String("addr")),
		total:       c.Int("total"),
		totalSet:    c.IsSet("total"),
		duration:    c.Duration("duration"),
		concurrency: c.Int("concurrency"),
		connections: c.Int("connections"),
		timeout:     c.Duration("timeout"),
		rps:         c.Float64("rps"),
		cancelRate:  c.Int("cancel-rate"),
		users:       splitList(c.StringSlice("users")),
		products:    splitList(c.StringSlice("products")),
		quantity:    c.Int("quantity"),
		outputPath:  c.String("output"),
	}

	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	method, err := domain.ParsePaymentMethod(c.String("payment-method"))
	if err != nil {
		return cfg, err
	}
	cfg.paymentMethod = method

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case cfg.addr == "":
		return errors.New("addr is required")
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.rps < 0:
		return errors.New("rps must be >= 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case len(cfg.users) == 0:
		return errors.New("at least one user is required")
	case len(cfg.products) == 0:
		return errors.New("at least one product is required")
	case cfg.quantity <= 0:
		return errors.New("quantity must be > 0")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreatePay, modeCreatePayCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var errScenariosFailed = errors.New("some scenarios failed")

func run(ctx context.Context, cfg config, out io.Writer) error {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	callers := make([]orderCaller, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for range cfg.connections {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		callers = append(callers, grpcsvc.NewClient(conn))
	}

	result := execute(ctx, cfg, callers)
	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if result.FailedScenarios > 0 {
		return fmt.Errorf("%w: %d of %d", errScenariosFailed, result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}

func execute(ctx context.Context, cfg config, callers []orderCaller) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	var limiter *rate.Limiter
	if cfg.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rps), 1)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var failures atomic.Int64
	var wg sync.WaitGroup
	for worker := range cfg.concurrency {
		caller := callers[worker%len(callers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := runScenario(ctx, caller, cfg, id, runID, col); err != nil {
					failures.Add(1)
				}
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg, limiter)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures.Load() > 0 {
		result.FailedScenarios = failures.Load()
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

// dispatchJobs раздаёт номера сценариев до исчерпания total, duration или ctx.
func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config, limiter *rate.Limiter) {
	defer close(jobs)

	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}
	bounded := cfg.duration <= 0 || cfg.totalSet

	for i := 0; !bounded || i < cfg.total; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, caller orderCaller, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMetric, time.Since(scenarioStart), scenarioCode)
	}()

	user := cfg.users[index%len(cfg.users)]
	ctx = grpcsvc.AsUser(ctx, user)

	created, err := call(ctx, caller, cfg.timeout, grpcsvc.MethodCreateOrder, fmt.Sprintf("lt-create-%s-%d", runID, index), createRequest(cfg), col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}
	orderID, _ := created["id"].(string)
	if orderID == "" {
		scenarioCode = codes.Internal
		return errors.New("create response returned empty order id")
	}

	if cfg.mode == modeCreate {
		return nil
	}

	if _, err := call(ctx, caller, cfg.timeout, grpcsvc.MethodProcessPayment, fmt.Sprintf("lt-pay-%s-%d", runID, index), paymentRequest(orderID, cfg.paymentMethod), col); err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	if cfg.mode == modeCreatePayCancel || (cfg.mode == modeCreatePay && shouldCancelScenario(index, cfg.cancelRate)) {
		cancelReq := map[string]any{"order_id": orderID, "reason": "load-cancel"}
		if _, err := call(ctx, caller, cfg.timeout, grpcsvc.MethodCancelOrder, fmt.Sprintf("lt-cancel-%s-%d", runID, index), cancelReq, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}
	return nil
}

func call(ctx context.Context, caller orderCaller, timeout time.Duration, method, key string, req map[string]any, col *collector) (map[string]any, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(grpcsvc.WithIdempotencyKey(ctx, key), timeout)
	defer cancel()

	resp, err := caller.Call(ctx, method, req)
	col.record(method, time.Since(start), grpcCode(err))
	return resp, err
}

func createRequest(cfg config) map[string]any {
	items := make([]any, 0, len(cfg.products))
	for _, product := range cfg.products {
		items = append(items, map[string]any{"product_id": product, "quantity": cfg.quantity})
	}
	return map[string]any{
		"items":            items,
		"delivery_address": "Load Test Street 1",
		"payment_method":   string(cfg.paymentMethod),
	}
}

func paymentRequest(orderID string, method domain.PaymentMethod) map[string]any {
	req := map[string]any{"order_id": orderID, "payment_method": string(method)}
	switch method {
	case domain.PaymentMethodCard:
		req["card"] = map[string]any{
			"number":       "4111111111111111",
			"expiry_month": "12",
			"expiry_year":  "2035",
			"cvv":          "123",
			"holder_name":  "Load Test",
		}
	case domain.PaymentMethodUPI:
		req["upi_id"] = "loadtest@okbank"
	}
	return req
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаёт оператор нагрузочного теста.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	fmt.Fprintln(out, "Load test summary")
	fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate,
	)
	fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	lat := result.ScenarioLatencyMs
	fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMetric {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		stats := result.Methods[name]
		fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms codes=%v\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95, stats.Codes)
	}
}

func runTarget(cfg config) string {
	target := fmt.Sprintf("count:%d", cfg.total)
	if cfg.duration > 0 {
		target = fmt.Sprintf("duration:%s", cfg.duration)
		if cfg.totalSet {
			target += fmt.Sprintf(",max-total:%d", cfg.total)
		}
	}
	if cfg.rps > 0 {
		target += fmt.Sprintf(",rps:%.1f", cfg.rps)
	}
	return target
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile считает перцентиль с линейной интерполяцией по отсортированному срезу.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
