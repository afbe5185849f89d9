// Benchmark tool for scoring labelled insurance claims against Kestrel.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/insurance_claims.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a labelled claims CSV (the Mendeley insurance_claims layout)
//  2. Sends each claim to POST /claims/score
//  3. Compares Kestrel's escalation flag with the fraud_reported label
//  4. Prints precision, recall, F1-score and the confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LabelledClaim is a claim with its ground-truth label.
type LabelledClaim struct {
	Claim   domain.Claim
	IsFraud bool
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  atomic.Int64 // fraud escalated
	FalsePositives atomic.Int64 // legitimate claim escalated
	TrueNegatives  atomic.Int64
	FalseNegatives atomic.Int64 // missed fraud

	TotalProcessed atomic.Int64
	TotalErrors    atomic.Int64

	ProcessingTimeMs atomic.Int64

	mu       sync.Mutex
	byStatus map[domain.FinalStatus]int64
}

func (m *Metrics) record(actual bool, resp *domain.ScoreResponse) {
	predicted := resp.Assessment.RequiresInvestigation
	switch {
	case predicted && actual:
		m.TruePositives.Add(1)
	case predicted && !actual:
		m.FalsePositives.Add(1)
	case !predicted && !actual:
		m.TrueNegatives.Add(1)
	default:
		m.FalseNegatives.Add(1)
	}

	m.mu.Lock()
	m.byStatus[resp.Decision.FinalStatus]++
	m.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled claims CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 1000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/insurance_claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================================")
	fmt.Println("        KESTREL BENCHMARK - labelled claim fraud detection")
	fmt.Println("=================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	claims, err := readClaimsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(claims) == 0 {
		fmt.Println("ERROR: no claims in CSV")
		os.Exit(1)
	}

	fraudCount := 0
	for _, c := range claims {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("Loaded %d claims\n", len(claims))
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Non-fraud: %d\n", len(claims)-fraudCount)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	metrics := runBenchmark(claims, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readClaimsCSV maps the columns it knows by header name; others are ignored.
func readClaimsCSV(path string, limit int) ([]LabelledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["fraud_reported"]; !ok {
		return nil, fmt.Errorf("missing fraud_reported column")
	}

	get := func(record []string, name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	num := func(record []string, name string) float64 {
		v, _ := strconv.ParseFloat(get(record, name), 64)
		return v
	}

	var claims []LabelledClaim
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		claim := domain.Claim{
			ID:                  fmt.Sprintf("BENCH-%06d", row),
			PolicyNumber:        get(record, "policy_number"),
			Amount:              num(record, "total_claim_amount"),
			PolicyStartDate:     get(record, "policy_bind_date"),
			IncidentDate:        get(record, "incident_date"),
			IncidentType:        get(record, "incident_type"),
			IncidentLocation:    get(record, "incident_location"),
			IncidentDescription: strings.TrimSpace(get(record, "incident_severity") + " " + get(record, "collision_type")),
			PolicyType:          "motor",
			Deductible:          num(record, "policy_deductable"),
			Claimant: domain.Party{
				ID:      "insured-" + get(record, "insured_zip"),
				Address: get(record, "incident_city"),
			},
		}
		claims = append(claims, LabelledClaim{
			Claim:   claim,
			IsFraud: strings.EqualFold(get(record, "fraud_reported"), "Y"),
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}
	return claims, nil
}

func runBenchmark(claims []LabelledClaim, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{byStatus: make(map[domain.FinalStatus]int64)}

	work := make(chan LabelledClaim, 100)
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for lc := range work {
				start := time.Now()
				resp, err := scoreClaim(client, baseURL, tenantID, lc.Claim)
				metrics.ProcessingTimeMs.Add(time.Since(start).Milliseconds())
				metrics.TotalProcessed.Add(1)

				if err != nil {
					metrics.TotalErrors.Add(1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", lc.Claim.ID, err)
					}
					continue
				}
				metrics.record(lc.IsFraud, resp)

				if verbose {
					mark := "ok "
					if resp.Assessment.RequiresInvestigation != lc.IsFraud {
						mark = "BAD"
					}
					fmt.Printf("%s %s | Amount: %10.2f | Fraud: %-5v | Score: %.3f %-8s | %s\n",
						mark,
						lc.Claim.ID,
						lc.Claim.Amount,
						lc.IsFraud,
						resp.Assessment.FraudScore,
						resp.Assessment.RiskLevel,
						resp.Decision.FinalStatus,
					)
				}
			}
		}()
	}

	for _, c := range claims {
		work <- c
	}
	close(work)
	wg.Wait()

	return metrics
}

func scoreClaim(client *http.Client, baseURL, tenantID string, claim domain.Claim) (*domain.ScoreResponse, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/claims/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Assessment == nil || result.Decision == nil {
		return nil, fmt.Errorf("incomplete response")
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	tp, fp := m.TruePositives.Load(), m.FalsePositives.Load()
	tn, fn := m.TrueNegatives.Load(), m.FalseNegatives.Load()
	processed := m.TotalProcessed.Load()

	fmt.Println("\n=================================================================")
	fmt.Println("                       BENCHMARK RESULTS")
	fmt.Println("=================================================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", processed)
	fmt.Printf("   Total Fraud:      %d\n", tp+fn)
	fmt.Printf("   Total Non-Fraud:  %d\n", fp+tn)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors.Load())

	fmt.Printf("\nCONFUSION MATRIX (escalated = predicted fraud)\n")
	fmt.Println("                    ESCALATED   CLEARED")
	fmt.Printf("   Actual  fraud    %9d %9d   (TP, FN)\n", tp, fn)
	fmt.Printf("           legit    %9d %9d   (FP, TN)\n", fp, tn)

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", ratio(tp+tn, tp+tn+fp+fn))

	fmt.Printf("\nFINAL STATUS\n")
	m.mu.Lock()
	for _, s := range []domain.FinalStatus{
		domain.StatusApproved,
		domain.StatusFlaggedForReview,
		domain.StatusRejected,
		domain.StatusEscalatedFraudReview,
	} {
		fmt.Printf("   %-24s %d\n", s, m.byStatus[s])
	}
	m.mu.Unlock()

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if processed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs.Load())/float64(processed))
		fmt.Printf("   Throughput:       %.2f claims/sec\n", float64(processed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
