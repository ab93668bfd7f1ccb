package services

import (
	"strings"
	"sync"
	"time"

	"forecast-dashboard/pkg/forecastapi"

	"github.com/gin-gonic/gin"
)

const maxMonitoringEntries = 5000

// LogEntry is one inbound request.
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// BackendCall is one outbound call to the forecast service.
type BackendCall struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Endpoint   string        `json:"endpoint"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration"`
	ErrorClass string        `json:"error_class,omitempty"`
}

// MonitoringService keeps recent inbound requests and backend calls in memory.
type MonitoringService struct {
	mu    sync.RWMutex
	logs  []LogEntry
	calls []BackendCall
	now   func() time.Time
}

func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs:  make([]LogEntry, 0),
		calls: make([]BackendCall, 0),
		now:   time.Now,
	}
}

// LogRequest records an inbound request.
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = appendBounded(s.logs, entry)
}

// ObserveCall records an outbound call; it satisfies forecastapi.CallObserver.
func (s *MonitoringService) ObserveCall(r forecastapi.CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = appendBounded(s.calls, BackendCall{
		Timestamp:  r.Timestamp,
		Method:     r.Method,
		Endpoint:   r.Endpoint,
		StatusCode: r.StatusCode,
		Duration:   r.Duration,
		ErrorClass: r.ErrorClass,
	})
}

func appendBounded[T any](buf []T, v T) []T {
	buf = append(buf, v)
	if over := len(buf) - maxMonitoringEntries; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}

// LoggingMiddleware records every request except the monitoring endpoints and
// the auto-refreshing static assets.
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") || strings.HasPrefix(path, "/static") {
			return
		}
		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// DashboardData is the aggregated monitoring view.
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
	BackendCalls     map[string]int           `json:"backendCalls"`
	BackendFailures  map[string]int           `json:"backendFailures"`
	RecentBackend    []BackendCall            `json:"recentBackend"`
}

// GetDashboardData aggregates the last periodHours of activity.
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	// hourly buckets, oldest first
	requestsOverTime := make([]map[string]interface{}, periodHours)
	bucketIndex := make(map[string]int, periodHours)
	for i := 0; i < periodHours; i++ {
		t := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		bucketIndex[t.Format(time.RFC3339)] = i
		requestsOverTime[i] = map[string]interface{}{"time": t.Format("15:00"), "requests": 0}
	}
	for _, entry := range filtered {
		key := entry.Timestamp.UTC().Truncate(time.Hour).Format(time.RFC3339)
		if i, ok := bucketIndex[key]; ok {
			requestsOverTime[i]["requests"] = requestsOverTime[i]["requests"].(int) + 1
		}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{"2xx Success": 0, "3xx Redirect": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	sum := make(map[string]time.Duration)
	count := make(map[string]int)
	for _, entry := range filtered {
		endpoints[entry.Path]++
		switch {
		case entry.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		case entry.StatusCode >= 400:
			statusCodes["4xx Client Error"]++
		case entry.StatusCode >= 300:
			statusCodes["3xx Redirect"]++
		case entry.StatusCode >= 200:
			statusCodes["2xx Success"]++
		}
		sum[entry.Path] += entry.ResponseTime
		count[entry.Path]++
	}
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusCodes))
	for name, value := range statusCodes {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": value})
	}
	avgResponseTimes := make([]map[string]interface{}, 0, len(sum))
	for path, total := range sum {
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{
			"endpoint":     path,
			"responseTime": total.Milliseconds() / int64(count[path]),
		})
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	backendCalls := make(map[string]int)
	backendFailures := make(map[string]int)
	recentBackend := make([]BackendCall, 0)
	for i := len(s.calls) - 1; i >= 0; i-- {
		call := s.calls[i]
		if !call.Timestamp.After(since) {
			continue
		}
		backendCalls[call.Endpoint]++
		if call.ErrorClass != "" {
			backendFailures[call.ErrorClass]++
		}
		if len(recentBackend) < 20 {
			recentBackend = append(recentBackend, call)
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
		BackendCalls:     backendCalls,
		BackendFailures:  backendFailures,
		RecentBackend:    recentBackend,
	}
}
