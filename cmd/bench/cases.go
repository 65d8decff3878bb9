// README: Bench cases: environment checks, registry and trip/invoice flows, a double-booking race and a nearby-search load run.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"taxidispatch/internal/modules/driver"
	"taxidispatch/internal/modules/invoice"
	"taxidispatch/internal/modules/passenger"
	"taxidispatch/internal/modules/trip"
	"taxidispatch/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Per-run state shared between sequential cases.
	run        string
	origin     types.Point
	raceOrigin types.Point
	passengers []types.ID
	driverID   types.ID
	tripID     types.ID
	invoiceID  types.ID
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	// A random spot per run keeps earlier runs' drivers out of the search radius.
	origin := types.Point{Lat: rand.Float64()*100 - 50, Lng: rand.Float64()*300 - 150}
	return &Runner{
		cfg:        cfg,
		httpc:      &http.Client{Timeout: 10 * time.Second},
		run:        fmt.Sprintf("%d", time.Now().UnixNano()),
		origin:     origin,
		raceOrigin: types.Point{Lat: origin.Lat + 1, Lng: origin.Lng},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Schema: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
		}},

		{Name: "Registry: register passengers", Run: registerPassengers},
		{Name: "Registry: duplicate email -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/passengers", map[string]any{
				"name":  "Bench Duplicate",
				"email": strings.ToUpper(r.email(0)),
			}, nil, http.StatusConflict)
		}},
		{Name: "Registry: register driver", Run: func(ctx context.Context, r *Runner) Result {
			id, res := r.registerDriver(ctx, "main", r.origin)
			r.driverID = id
			return res
		}},
		{Name: "Matching: nearby search finds driver", Run: nearbyFindsDriver},

		{Name: "Trip: missing fields -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/trips", map[string]any{}, nil, http.StatusBadRequest)
		}},
		{Name: "Trip: create assigns nearby driver", Run: createTrip},
		{Name: "Trip: passenger already active -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.passengers) == 0 {
				return skipped("no passengers")
			}
			return r.expect(ctx, http.MethodPost, "/api/trips", r.tripBody(r.passengers[0], r.origin), nil, http.StatusConflict)
		}},
		{Name: "Trip: only driver busy -> 404", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.passengers) < 2 || r.tripID == "" {
				return skipped("needs an active trip")
			}
			return r.expect(ctx, http.MethodPost, "/api/trips", r.tripBody(r.passengers[1], r.origin), nil, http.StatusNotFound)
		}},
		{Name: "Trip: complete issues invoice", Run: completeTrip},
		{Name: "Trip: complete twice -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.tripID == "" {
				return skipped("no trip")
			}
			return r.expect(ctx, http.MethodPut, "/api/trips/"+string(r.tripID)+"/complete", nil, nil, http.StatusConflict)
		}},

		{Name: "Invoice: lookup by trip", Run: func(ctx context.Context, r *Runner) Result {
			if r.tripID == "" {
				return skipped("no trip")
			}
			var inv invoice.Invoice
			res := r.expect(ctx, http.MethodGet, "/api/invoices/trip/"+string(r.tripID), nil, &inv, http.StatusOK)
			if res.Status == statusPass && inv.ID != r.invoiceID {
				return failed("invoice %s, want %s", inv.ID, r.invoiceID)
			}
			return res
		}},
		{Name: "Invoice: pay", Run: func(ctx context.Context, r *Runner) Result {
			if r.invoiceID == "" {
				return skipped("no invoice")
			}
			var inv invoice.Invoice
			res := r.expect(ctx, http.MethodPatch, "/api/invoices/"+string(r.invoiceID)+"/pay", nil, &inv, http.StatusOK)
			if res.Status == statusPass && (inv.Status != invoice.StatusPaid || inv.PaidAt == nil) {
				return failed("status=%s paid_at=%v", inv.Status, inv.PaidAt)
			}
			return res
		}},
		{Name: "Invoice: pay twice -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.invoiceID == "" {
				return skipped("no invoice")
			}
			return r.expect(ctx, http.MethodPatch, "/api/invoices/"+string(r.invoiceID)+"/pay", nil, nil, http.StatusConflict)
		}},

		{Name: "Race: concurrent trips on one driver", Run: raceSingleDriver},
		{Name: "Perf: nearby search throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, fmt.Sprintf("/api/drivers/nearby?lat=%f&lng=%f", r.origin.Lat, r.origin.Lng))
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return skipped("dsn not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return failed("%v", err)
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return skipped("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return failed("%v", err)
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return skipped("dsn not configured")
	}
	for _, t := range []string{"drivers", "passengers", "trips", "invoices"} {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return failed("%v", err)
		}
		if !exists {
			return failed("missing table: %s", t)
		}
	}
	return Result{Status: statusPass}
}

func registerPassengers(ctx context.Context, r *Runner) Result {
	start := time.Now()
	for i := 0; i <= r.cfg.Concurrency; i++ {
		var p passenger.Passenger
		res := r.expect(ctx, http.MethodPost, "/api/passengers", map[string]any{
			"name":  fmt.Sprintf("Bench Passenger %d", i),
			"email": r.email(i),
		}, &p, http.StatusCreated)
		if res.Status != statusPass {
			return res
		}
		r.passengers = append(r.passengers, p.ID)
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("count=%d", len(r.passengers))}
}

func nearbyFindsDriver(ctx context.Context, r *Runner) Result {
	if r.driverID == "" {
		return skipped("no driver")
	}
	var list struct {
		Items []driver.Driver `json:"items"`
	}
	path := fmt.Sprintf("/api/drivers/nearby?lat=%f&lng=%f", r.origin.Lat, r.origin.Lng)
	res := r.expect(ctx, http.MethodGet, path, nil, &list, http.StatusOK)
	if res.Status != statusPass {
		return res
	}
	for _, d := range list.Items {
		if d.ID == r.driverID {
			return res
		}
	}
	return failed("driver %s not in %d results", r.driverID, len(list.Items))
}

func createTrip(ctx context.Context, r *Runner) Result {
	if len(r.passengers) == 0 || r.driverID == "" {
		return skipped("needs passenger and driver")
	}
	var t trip.Trip
	res := r.expect(ctx, http.MethodPost, "/api/trips", r.tripBody(r.passengers[0], r.origin), &t, http.StatusCreated)
	if res.Status != statusPass {
		return res
	}
	if t.DriverID != r.driverID || t.Status != trip.StatusActive {
		return failed("driver=%s status=%s", t.DriverID, t.Status)
	}
	r.tripID = t.ID
	return res
}

func completeTrip(ctx context.Context, r *Runner) Result {
	if r.tripID == "" {
		return skipped("no trip")
	}
	var body struct {
		Trip    trip.Trip       `json:"trip"`
		Invoice invoice.Invoice `json:"invoice"`
	}
	res := r.expect(ctx, http.MethodPut, "/api/trips/"+string(r.tripID)+"/complete", nil, &body, http.StatusOK)
	if res.Status != statusPass {
		return res
	}
	if body.Trip.Status != trip.StatusCompleted || body.Invoice.Status != invoice.StatusPending || body.Invoice.Amount.Amount <= 0 {
		return failed("trip=%s invoice=%s amount=%d", body.Trip.Status, body.Invoice.Status, body.Invoice.Amount.Amount)
	}
	r.invoiceID = body.Invoice.ID
	res.Note = fmt.Sprintf("fare=%.2f %s", body.Invoice.Amount.Float(), body.Invoice.Amount.Currency)
	return res
}

// raceSingleDriver fires one createTrip per passenger at a spot with exactly one driver.
func raceSingleDriver(ctx context.Context, r *Runner) Result {
	if len(r.passengers) <= r.cfg.Concurrency {
		return skipped("not enough passengers")
	}
	driverID, reg := r.registerDriver(ctx, "race", r.raceOrigin)
	if reg.Status != statusPass {
		return reg
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		other   []int
	)
	start := time.Now()
	for i := 1; i <= r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(pid types.ID) {
			defer wg.Done()
			status, _, err := r.call(ctx, http.MethodPost, "/api/trips", r.tripBody(pid, r.raceOrigin))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case status == http.StatusCreated:
				created++
			case status == http.StatusNotFound || status == http.StatusConflict:
			default:
				other = append(other, status)
			}
		}(r.passengers[i])
	}
	wg.Wait()
	latency := time.Since(start)

	if created != 1 || len(other) > 0 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("created=%d unexpected=%v", created, other)}
	}
	if r.db != nil {
		var active int
		err := r.db.QueryRow(ctx,
			"SELECT count(*) FROM trips WHERE driver_id=$1 AND status='ACTIVE'", string(driverID),
		).Scan(&active)
		if err != nil {
			return failed("%v", err)
		}
		if active != 1 {
			return failed("active trips for driver=%d", active)
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("created=1 rejected=%d", r.cfg.Concurrency-1)}
}

func perfLoad(ctx context.Context, r *Runner, path string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, http.MethodGet, path, nil)
				mu.Lock()
				if err != nil || status != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return failed("no requests completed (errors=%d)", errCount)
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func (r *Runner) registerDriver(ctx context.Context, tag string, at types.Point) (types.ID, Result) {
	var d driver.Driver
	res := r.expect(ctx, http.MethodPost, "/api/drivers", map[string]any{
		"name":      "Bench Driver " + tag,
		"license":   fmt.Sprintf("BENCH-%s-%s", tag, r.run),
		"latitude":  at.Lat,
		"longitude": at.Lng,
	}, &d, http.StatusCreated)
	if res.Status == statusFail && (strings.Contains(res.Note, "status=401") || strings.Contains(res.Note, "status=403")) {
		res.Note += " (pass -token with an admin bearer token)"
	}
	return d.ID, res
}

func (r *Runner) email(i int) string {
	return fmt.Sprintf("bench-%s-%d@example.com", r.run, i)
}

// tripBody requests a ride of about 0.79 km north-east of from.
func (r *Runner) tripBody(pid types.ID, from types.Point) map[string]any {
	return map[string]any{
		"passenger_id": pid,
		"start_lat":    from.Lat,
		"start_lng":    from.Lng,
		"end_lat":      from.Lat + 0.0031,
		"end_lng":      from.Lng + 0.0067,
	}
}

// expect runs one request and passes when the status is want; out is decoded on success.
func (r *Runner) expect(ctx context.Context, method, path string, body, out any, want int) Result {
	start := time.Now()
	status, raw, err := r.call(ctx, method, path, body)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, truncate(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Result{Status: statusFail, Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func skipped(note string) Result {
	return Result{Status: statusSkip, Note: note}
}

func failed(format string, args ...any) Result {
	return Result{Status: statusFail, Note: fmt.Sprintf(format, args...)}
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
