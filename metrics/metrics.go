package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 1. 예약 요청 결과 (outcome: admitted, EVENT_NOT_FOUND, SOLD_OUT ...)
	ReservationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservation_results_total",
		Help: "Total number of reservation attempts by outcome",
	}, []string{"outcome"})

	// 2. 예약 처리 시간
	ReservationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_reservation_duration_seconds",
		Help:    "Latency of the reservation admission protocol",
		Buckets: prometheus.DefBuckets,
	})

	CancellationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cancellation_results_total",
		Help: "Total number of cancellation attempts by outcome",
	}, []string{"outcome"})

	AsyncSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_async_submissions_total",
		Help: "Total number of asynchronous reservation submissions by outcome",
	}, []string{"outcome"})

	// 같은 (event, user) 요청이 이미 처리 중이라 락 획득에 실패한 횟수
	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_lock_contention_total",
		Help: "Total number of reservation attempts rejected because the per-user lock was held",
	})

	// cache: marker | booked_seats, result: hit | miss | error
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cache_lookups_total",
		Help: "Fast-path cache lookups by cache kind and result",
	}, []string{"cache", "result"})

	// result: ack | nack | dlq_failed
	WorkerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_worker_messages_total",
		Help: "Queue messages handled by the reservation worker",
	}, []string{"result"})
)
