package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csw_pages_fetched_total",
		Help: "GetRecords pages fetched and stored",
	}, []string{"prefix"})
	PagesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csw_pages_failed_total",
		Help: "GetRecords pages marked failed",
	}, []string{"prefix"})
	Records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csw_records_total",
		Help: "Harvested records by outcome",
	}, []string{"prefix", "outcome"})
	PageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csw_page_duration_seconds",
		Help:    "Time to fetch and store one page",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"prefix"})
	QueueClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csw_queue_claims_total",
		Help: "Queue rows claimed for processing",
	}, []string{"prefix"})
)

func init() {
	prometheus.MustRegister(PagesFetched)
	prometheus.MustRegister(PagesFailed)
	prometheus.MustRegister(Records)
	prometheus.MustRegister(PageDuration)
	prometheus.MustRegister(QueueClaims)
}

// Handler exposes the registered metrics for scraping
func Handler() http.Handler { return promhttp.Handler() }
