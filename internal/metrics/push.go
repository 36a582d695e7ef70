package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushTimeout bounds a single metrics push.
const PushTimeout = 5 * time.Second

// PushGateway sends Registry to a Prometheus Pushgateway in the group
// {job=job, command=command}. Each hook invocation is its own process, so the
// pushed values are the counts of that one run: a push replaces the previous
// values of the same metrics in its group and leaves other commands' groups
// alone. Query them as last-run values (e.g. sum_over_time), not with rate().
func PushGateway(ctx context.Context, gatewayURL, job, command string, client *http.Client) error {
	if gatewayURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: PushTimeout}
	}
	p := push.New(gatewayURL, job).Gatherer(Registry).Client(client)
	if command != "" {
		p = p.Grouping("command", command)
	}
	if err := p.AddContext(ctx); err != nil {
		return fmt.Errorf("pushgateway: %w", err)
	}
	return nil
}

// InfluxTarget describes an InfluxDB v2 write endpoint.
type InfluxTarget struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// PushInflux writes the current snapshot to InfluxDB as line protocol.
func PushInflux(ctx context.Context, target InfluxTarget, client *http.Client) error {
	if target.URL == "" || target.Bucket == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: PushTimeout}
	}
	q := url.Values{}
	q.Set("org", target.Org)
	q.Set("bucket", target.Bucket)
	q.Set("precision", "s")
	writeURL := fmt.Sprintf("%s/api/v2/write?%s", strings.TrimRight(target.URL, "/"), q.Encode())

	body := LineProtocol(GetSnapshot(), time.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, writeURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("influxdb request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+target.Token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("influxdb push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("influxdb rejected metrics: status %d", resp.StatusCode)
	}
	return nil
}

// LineProtocol renders s as InfluxDB line protocol, one summary line plus one
// line per channel.
//
//	watchhook changes=3i,check_errors=0i,... 1678888888
//	watchhook_notifications,channel=Slack sent=3i,failed=0i 1678888888
func LineProtocol(s StatsSnapshot, now time.Time) string {
	ts := now.Unix()
	var b strings.Builder
	fmt.Fprintf(&b,
		"watchhook changes=%di,check_errors=%di,maintenance_skips=%di,screenshots=%di,screenshot_failures=%di,last_run=%di %d\n",
		s.Changes, s.CheckErrors, s.MaintenanceSkips, s.Screenshots, s.ScreenshotFailures, s.LastRun, ts,
	)
	for _, c := range s.Channels {
		fmt.Fprintf(&b, "watchhook_notifications,channel=%s sent=%di,failed=%di %d\n",
			escapeTag(c.Channel), c.Sent, c.Failed, ts)
	}
	return b.String()
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

func escapeTag(v string) string { return tagEscaper.Replace(v) }
