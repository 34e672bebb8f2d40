package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
)

// minGap mirrors the booking core's conflict window.
const minGap = 30 * time.Minute

type SimConfig struct {
	APIBaseURL string
	Rounds     int
	Workers    int           // concurrent bookings per round
	Jitter     time.Duration // spread of requested times around each round's target
	Verify     bool          // read the weekly calendar back and count violations
	JWTSecret  string
	JWTIssuer  string
	Location   *time.Location
}

type OperationMetrics struct {
	Total     int64
	Accepted  int64
	Conflict  int64 // time_conflict answers
	Contended int64 // slot_being_booked answers
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeConflict
	outcomeContended
	outcomeError
)

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeAccepted:
		atomic.AddInt64(&om.Accepted, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeContended:
		atomic.AddInt64(&om.Contended, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	runID   string
	metrics OperationMetrics

	mu     sync.Mutex
	weeks  map[string]struct{} // weeks touched, as YYYY-MM-DD of any day in them
	emails map[string]struct{} // emails used by this run
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: rounds=%d workers=%d jitter=%s verify=%t",
		cfg.Rounds, cfg.Workers, cfg.Jitter, cfg.Verify)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		runID:  uuid.NewString()[:8],
		weeks:  make(map[string]struct{}),
		emails: make(map[string]struct{}),
	}

	ctx := context.Background()
	sim.Run(ctx)
	sim.PrintReport()

	if cfg.Verify {
		violations, checked, err := sim.Verify(ctx)
		if err != nil {
			log.Fatalf("verify: %v", err)
		}
		fmt.Printf("Verification: %d active appointments read back, %d pairs closer than %s\n",
			checked, violations, minGap)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL: strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Rounds:     getInt("SIM_ROUNDS", 20),
		Workers:    getInt("SIM_WORKERS", 10),
		Jitter:     getDuration("SIM_JITTER", 20*time.Minute),
		Verify:     getEnv("SIM_VERIFY", "true") == "true",
		JWTSecret:  baseCfg.JWTSecret,
		JWTIssuer:  baseCfg.JWTIssuer,
		Location:   baseCfg.Location(),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Rounds <= 0 {
		return fmt.Errorf("SIM_ROUNDS must be > 0")
	}
	if cfg.Jitter < 0 {
		return fmt.Errorf("SIM_JITTER must be >= 0")
	}
	return nil
}

// Run fires Workers public bookings at once per round, all aimed within
// Jitter of the same target time. Targets are two hours apart so rounds never
// interfere with each other.
func (s *Simulator) Run(ctx context.Context) {
	base := firstTarget(time.Now().In(s.config.Location))
	log.Printf("starting %d rounds from %s", s.config.Rounds, base.Format(time.RFC3339))

	for round := 0; round < s.config.Rounds; round++ {
		target := base.Add(time.Duration(round) * 2 * time.Hour)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < s.config.Workers; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(round*1000+worker)))
				at := target
				if s.config.Jitter > 0 {
					at = at.Add(time.Duration(rng.Int63n(int64(s.config.Jitter))))
				}
				<-start
				s.book(ctx, round, worker, at)
			}(w)
		}
		close(start)
		wg.Wait()
	}

	log.Println("simulation complete")
}

// firstTarget returns 09:00 of the first Monday at least 30 days out.
func firstTarget(now time.Time) time.Time {
	d := now.AddDate(0, 0, 30)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, d.Location())
}

func (s *Simulator) book(ctx context.Context, round, worker int, at time.Time) {
	email := fmt.Sprintf("sim-%s-r%d-w%d@example.test", s.runID, round, worker)

	s.mu.Lock()
	s.weeks[at.Format(time.DateOnly)] = struct{}{}
	s.emails[email] = struct{}{}
	s.mu.Unlock()

	body, _ := json.Marshal(map[string]string{
		"patient_name":     fmt.Sprintf("Sim Patient %d-%d", round, worker),
		"patient_email":    email,
		"patient_phone":    "600000000",
		"treatment_type":   "consulta_general",
		"appointment_date": at.Format(time.RFC3339),
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/api/appointments/public", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Record(latency, outcomeError)
		return
	}
	defer resp.Body.Close()

	var errBody struct {
		Error string `json:"error"`
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		s.metrics.Record(latency, outcomeAccepted)
	case http.StatusUnprocessableEntity:
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "time_conflict" {
			s.metrics.Record(latency, outcomeConflict)
		} else {
			s.metrics.Record(latency, outcomeError)
		}
	case http.StatusConflict:
		s.metrics.Record(latency, outcomeContended)
	default:
		s.metrics.Record(latency, outcomeError)
	}
}

// Verify reads every touched week back through the staff calendar and counts
// neighbouring appointments of this run that sit closer than minGap.
func (s *Simulator) Verify(ctx context.Context) (violations, checked int, err error) {
	verifier := auth.NewVerifier(s.config.JWTSecret, s.config.JWTIssuer)
	token, err := verifier.Issue("simulator", 10*time.Minute)
	if err != nil {
		return 0, 0, fmt.Errorf("issue token: %w", err)
	}

	var times []time.Time
	for week := range s.weeks {
		got, err := s.fetchWeek(ctx, token, week)
		if err != nil {
			return 0, 0, err
		}
		times = append(times, got...)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	times = dedupe(times)
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) < minGap {
			violations++
		}
	}
	return violations, len(times), nil
}

type calendarAppointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientEmail    string     `json:"patient_email"`
	AppointmentDate *time.Time `json:"appointment_date"`
	Status          string     `json:"status"`
}

func (s *Simulator) fetchWeek(ctx context.Context, token, day string) ([]time.Time, error) {
	u := s.config.APIBaseURL + "/api/appointments/calendar/weekly?start_date=" + url.QueryEscape(day)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch week %s: %w", day, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch week %s: status %d", day, resp.StatusCode)
	}

	var body struct {
		Appointments []calendarAppointment `json:"appointments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode week %s: %w", day, err)
	}

	var out []time.Time
	for _, a := range body.Appointments {
		if _, ours := s.emails[a.PatientEmail]; !ours || a.AppointmentDate == nil || a.Status == "cancelled" {
			continue
		}
		out = append(out, *a.AppointmentDate)
	}
	return out, nil
}

// dedupe drops repeats that come from reading the same week twice.
func dedupe(sorted []time.Time) []time.Time {
	out := sorted[:0]
	for i, t := range sorted {
		if i > 0 && t.Equal(sorted[i-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Simulator) PrintReport() {
	om := &s.metrics

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d  Workers per round: %d  Jitter: %s\n", s.config.Rounds, s.config.Workers, s.config.Jitter)
	fmt.Println()

	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Println("no requests sent")
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	accepted := atomic.LoadInt64(&om.Accepted)
	conflict := atomic.LoadInt64(&om.Conflict)
	contended := atomic.LoadInt64(&om.Contended)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Println("Public booking:")
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Accepted: %d (%.1f%%)\n", accepted, pct(accepted))
	fmt.Printf("  Time conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	if contended > 0 {
		fmt.Printf("  Lock contention: %d (%.1f%%)\n", contended, pct(contended))
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, pct(errs))
	}
	fmt.Printf("  Accepted per round: %.2f (1.00 means no double booking)\n", float64(accepted)/float64(s.config.Rounds))
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
