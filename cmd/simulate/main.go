package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// simulate fires concurrent reservation attempts at a single slot and
// reports how many won. With a correct single-winner guarantee exactly one
// attempt should return 201 and the rest 409.

type simConfig struct {
	APIBaseURL     string
	PractitionerID string
	Date           string
	StartTime      string
	EndTime        string
	Mode           string
	Contenders     int
	Rounds         int
}

type reserveResult struct {
	Status      int
	LockID      uuid.UUID
	Code        string
	RequesterID string
	Latency     time.Duration
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := simConfig{}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "base URL of the api-server")
	flag.StringVar(&cfg.PractitionerID, "practitioner", "", "practitioner UUID (required)")
	flag.StringVar(&cfg.Date, "date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "slot date")
	flag.StringVar(&cfg.StartTime, "start", "09:00", "slot start time")
	flag.StringVar(&cfg.EndTime, "end", "09:30", "slot end time")
	flag.StringVar(&cfg.Mode, "mode", "online", "consultation mode")
	flag.IntVar(&cfg.Contenders, "contenders", 50, "concurrent reservation attempts per round")
	flag.IntVar(&cfg.Rounds, "rounds", 1, "number of contention rounds")
	flag.Parse()

	if cfg.PractitionerID == "" {
		log.Fatal("-practitioner is required")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for round := 1; round <= cfg.Rounds; round++ {
		log.Printf("round %d: %d contenders racing for %s %s-%s (%s)",
			round, cfg.Contenders, cfg.Date, cfg.StartTime, cfg.EndTime, cfg.Mode)
		// Round 1 races for a free slot; once its winner confirms, every
		// later round must lose to the committed appointment.
		runRound(client, cfg, round == 1)
	}
}

func runRound(client *http.Client, cfg simConfig, wantWinner bool) {
	var (
		wg        sync.WaitGroup
		won       int64
		conflicts int64
		errors    int64
	)
	results := make(chan reserveResult, cfg.Contenders)
	start := make(chan struct{})

	for i := 0; i < cfg.Contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			res, err := reserve(client, cfg, uuid.NewString())
			if err != nil {
				atomic.AddInt64(&errors, 1)
				return
			}
			switch res.Status {
			case http.StatusCreated:
				atomic.AddInt64(&won, 1)
				results <- res
			case http.StatusConflict:
				atomic.AddInt64(&conflicts, 1)
			default:
				atomic.AddInt64(&errors, 1)
			}
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	log.Printf("round done: winners=%d conflicts=%d errors=%d", won, conflicts, errors)
	expected := int64(0)
	if wantWinner {
		expected = 1
	}
	if won != expected {
		log.Printf("WARNING: expected %d winner(s), got %d", expected, won)
	}

	// Confirm the winning lock so the next round contends against a real
	// appointment instead of a stale lock.
	for res := range results {
		if err := confirm(client, cfg, res); err != nil {
			log.Printf("confirm failed for lock %s: %v", res.LockID, err)
			continue
		}
		log.Printf("lock %s confirmed in %s", res.LockID, res.Latency)
	}
}

func reserve(client *http.Client, cfg simConfig, requesterID string) (reserveResult, error) {
	body, err := json.Marshal(map[string]string{
		"doctor_id":    cfg.PractitionerID,
		"date":         cfg.Date,
		"start_time":   cfg.StartTime,
		"end_time":     cfg.EndTime,
		"mode":         cfg.Mode,
		"requester_id": requesterID,
	})
	if err != nil {
		return reserveResult{}, err
	}

	started := time.Now()
	resp, err := client.Post(cfg.APIBaseURL+"/reservations", "application/json", bytes.NewReader(body))
	if err != nil {
		return reserveResult{}, err
	}
	defer resp.Body.Close()

	res := reserveResult{Status: resp.StatusCode, RequesterID: requesterID, Latency: time.Since(started)}
	if resp.StatusCode == http.StatusCreated {
		var payload struct {
			LockID uuid.UUID `json:"lock_id"`
			Code   string    `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return reserveResult{}, err
		}
		res.LockID = payload.LockID
		res.Code = payload.Code
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return res, nil
}

func confirm(client *http.Client, cfg simConfig, res reserveResult) error {
	body, err := json.Marshal(map[string]string{
		"code":         res.Code,
		"requester_id": res.RequesterID,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/reservations/%s/confirm", cfg.APIBaseURL, res.LockID)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
