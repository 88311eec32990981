// Package metrics 以 Prometheus 文本格式暴露 HTTP 指标，不引入
// 额外依赖，供 API 服务挂载 /metrics 端点。
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type sampleKey struct {
	handler string
	method  string
	code    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func newHistogram() *histogram {
	return &histogram{
		buckets: defaultBuckets,
		counts:  make([]uint64, len(defaultBuckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// 超出最后一个桶的样本只计入 +Inf（即 h.count）。
}

type collector struct {
	mu       sync.Mutex
	requests map[sampleKey]uint64
	latency  map[sampleKey]*histogram
}

var httpCollector = &collector{
	requests: make(map[sampleKey]uint64),
	latency:  make(map[sampleKey]*histogram),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	key := sampleKey{handler: handler, method: method, code: strconv.Itoa(status)}
	latKey := sampleKey{handler: handler, method: method}

	httpCollector.mu.Lock()
	defer httpCollector.mu.Unlock()
	httpCollector.requests[key]++
	hist := httpCollector.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		httpCollector.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKeys := make([]sampleKey, 0, len(c.requests))
	for key := range c.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		a, b := reqKeys[i], reqKeys[j]
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.code < b.code
	})

	latKeys := make([]sampleKey, 0, len(c.latency))
	for key := range c.latency {
		latKeys = append(latKeys, key)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		a, b := latKeys[i], latKeys[j]
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		return a.method < b.method
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP agentpact_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE agentpact_http_requests_total counter\n")
	for _, key := range reqKeys {
		builder.WriteString(fmt.Sprintf("agentpact_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key]))
	}

	builder.WriteString("# HELP agentpact_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE agentpact_http_request_duration_seconds histogram\n")
	for _, key := range latKeys {
		hist := c.latency[key]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("agentpact_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				key.handler, key.method, formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agentpact_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			key.handler, key.method, hist.count))
		builder.WriteString(fmt.Sprintf("agentpact_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			key.handler, key.method, formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("agentpact_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			key.handler, key.method, hist.count))
	}

	return builder.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
