package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

type loadTestOptions struct {
	BaseURL     string
	EventID     uint
	Users       int
	Concurrency int
	Async       bool
	Timeout     time.Duration
}

// loadTestReport HTTP 상태 코드별 응답 수
type loadTestReport struct {
	ByStatus map[int]int
	Errors   int
	Elapsed  time.Duration
}

func (r loadTestReport) Total() int {
	n := r.Errors
	for _, c := range r.ByStatus {
		n += c
	}
	return n
}

func NewLoadTestCommand() *cobra.Command {
	opts := loadTestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "여러 사용자가 동시에 같은 이벤트를 예약하는 부하 테스트",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.EventID == 0 {
				return fmt.Errorf("--event is required")
			}
			if opts.Users <= 0 {
				return fmt.Errorf("--users must be positive")
			}

			client := &http.Client{Timeout: opts.Timeout}
			report := runLoadTest(cmd.Context(), client, opts)
			printReport(cmd.OutOrStdout(), opts, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://localhost:8080", "API 서버 주소")
	cmd.Flags().UintVar(&opts.EventID, "event", 0, "예약할 이벤트 ID")
	cmd.Flags().IntVar(&opts.Users, "users", 1000, "가상 사용자 수 (user_0 ... user_N-1)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 200, "동시 요청 수")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "reserve-async 엔드포인트 사용")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "요청 타임아웃")

	return cmd
}

func runLoadTest(ctx context.Context, client *http.Client, opts loadTestOptions) loadTestReport {
	path := "/api/bookings/reserve"
	if opts.Async {
		path = "/api/bookings/reserve-async"
	}
	url := strings.TrimRight(opts.BaseURL, "/") + path

	concurrency := opts.Concurrency
	if concurrency <= 0 || concurrency > opts.Users {
		concurrency = opts.Users
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, concurrency)
	)
	report := loadTestReport{ByStatus: map[int]int{}}
	start := time.Now()

	for i := 0; i < opts.Users; i++ {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			defer func() { <-sem }()

			status, err := reserveOnce(ctx, client, url, opts.EventID, fmt.Sprintf("user_%d", user))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				return
			}
			report.ByStatus[status]++
		}(i)
	}

	wg.Wait()
	report.Elapsed = time.Since(start)
	return report
}

func reserveOnce(ctx context.Context, client *http.Client, url string, eventID uint, userID string) (int, error) {
	body, err := json.Marshal(map[string]any{"event_id": eventID, "user_id": userID})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func statusLabel(status int) string {
	switch status {
	case http.StatusCreated:
		return "예약 성공"
	case http.StatusAccepted:
		return "대기열 접수"
	case http.StatusGone:
		return "매진"
	case http.StatusBadRequest:
		return "중복/잘못된 요청"
	case http.StatusConflict:
		return "처리 중 (재시도 필요)"
	case http.StatusNotFound:
		return "이벤트 없음"
	default:
		return http.StatusText(status)
	}
}

func printReport(w io.Writer, opts loadTestOptions, report loadTestReport) {
	statuses := make([]int, 0, len(report.ByStatus))
	for s := range report.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)

	fmt.Fprintf(w, "event=%d users=%d async=%t elapsed=%s\n", opts.EventID, opts.Users, opts.Async, report.Elapsed.Round(time.Millisecond))
	for _, s := range statuses {
		fmt.Fprintf(w, "  %d %-20s %d\n", s, statusLabel(s), report.ByStatus[s])
	}
	if report.Errors > 0 {
		fmt.Fprintf(w, "  transport errors       %d\n", report.Errors)
	}
	fmt.Fprintln(w, "테스트 종료")
}
