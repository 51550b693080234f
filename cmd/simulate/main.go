package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Providers   int
	CancelRatio float64
}

// DataPool tracks ids created during the run so workers can cancel and
// re-book realistically.
type DataPool struct {
	mu           sync.RWMutex
	appointments []uuid.UUID
	patients     []patient
}

type patient struct {
	First string
	Last  string
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

func (dp *DataPool) RandomPatient() patient {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.patients[rand.Intn(len(dp.patients))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}

	return avg, latencies[idx(50)], latencies[idx(95)]
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := SimConfig{}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "simulation duration")
	flag.IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	flag.IntVar(&cfg.Providers, "providers", 10, "number of providers to target")
	flag.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.2, "fraction of operations that cancel")
	flag.Parse()

	log.Printf("simulation starting: workers=%d duration=%s api=%s", cfg.Workers, cfg.Duration, cfg.APIBaseURL)

	gofakeit.Seed(time.Now().UnixNano())

	pool := &DataPool{}
	for i := 0; i < 200; i++ {
		pool.patients = append(pool.patients, patient{
			First: gofakeit.FirstName(),
			Last:  gofakeit.LastName(),
		})
	}

	bookMetrics := &OperationMetrics{}
	cancelMetrics := &OperationMetrics{}

	client := &http.Client{Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, client, cfg, pool, bookMetrics, cancelMetrics)
		}()
	}
	wg.Wait()

	report("book", bookMetrics)
	report("cancel", cancelMetrics)
}

func worker(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, bookM, cancelM *OperationMetrics) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if rand.Float64() < cfg.CancelRatio {
			if id, ok := pool.RandomAppointment(); ok {
				doCancel(ctx, client, cfg.APIBaseURL, id, cancelM)
				continue
			}
		}
		doBook(ctx, client, cfg, pool, bookM)
	}
}

func doBook(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	p := pool.RandomPatient()

	// Target tomorrow's working hours so seeded slots line up.
	ts := time.Now().UTC().Truncate(24*time.Hour).
		AddDate(0, 0, 1+rand.Intn(7)).
		Add(time.Duration(9+rand.Intn(8)) * time.Hour)

	body, _ := json.Marshal(map[string]any{
		"provider_id":        1 + rand.Intn(cfg.Providers),
		"patient_first_name": p.First,
		"patient_last_name":  p.Last,
		"start_time":         ts.Format(time.RFC3339),
	})

	start := time.Now()
	resp, err := post(ctx, client, cfg.APIBaseURL+"/appointments", body)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			pool.AddAppointment(created.ID)
		}
		m.Record(latency, true, false)
	case http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		m.Record(latency, false, true)
	default:
		io.Copy(io.Discard, resp.Body)
		m.Record(latency, false, false)
	}
}

func doCancel(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, m *OperationMetrics) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/appointments/%s", baseURL, id), nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	m.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func report(name string, m *OperationMetrics) {
	avg, p50, p95 := m.Stats()
	log.Printf("%s: total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
		name,
		atomic.LoadInt64(&m.Total),
		atomic.LoadInt64(&m.Success),
		atomic.LoadInt64(&m.Conflict),
		atomic.LoadInt64(&m.Error),
		avg, p50, p95,
	)
}
