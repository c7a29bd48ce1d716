// Package panels polls external SMS-gateway panels for inbound messages and
// feeds them into the delivery pipeline.
package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	coreconfig "otprelay/core/config"
	"otprelay/core/logger"
	"otprelay/internal/otp"
)

// maxBodyBytes caps how much of a panel response is read. Panels return a
// handful of records; anything larger is a misbehaving endpoint.
const maxBodyBytes = 1 << 20

// Sink receives messages pulled from a panel.
type Sink interface {
	HandleMessage(ctx context.Context, number, message, service, source string) (bool, error)
}

type panelRecord struct {
	Num     string          `json:"num"`
	CLI     string          `json:"cli"`
	Message json.RawMessage `json:"message"`
}

type panelPayload struct {
	Data []panelRecord `json:"data"`
}

// text tolerates panels that send the message as a bare number.
func (r panelRecord) text() string {
	if len(r.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	return string(r.Message)
}

// Poller pulls one panel on a fixed interval. Each cycle fetches the latest
// records and routes only the newest one; a fingerprint of its number and
// message suppresses re-delivery of a record already seen.
type Poller struct {
	Config coreconfig.PanelConfig
	Sink   Sink
	Client *http.Client

	lastKey string
}

// Run blocks until ctx is cancelled. Fetch failures are logged and the next
// tick retries; a panel being down must not take the poller with it.
func (p *Poller) Run(ctx context.Context) {
	if p.Client == nil {
		p.Client = &http.Client{Timeout: 10 * time.Second}
	}
	interval := time.Duration(p.Config.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info(ctx, "panel", "panel.start",
		slog.String("panel", p.Config.Name),
		slog.Int64("duration_ms", interval.Milliseconds()),
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "panel", "panel.stop",
				slog.String("panel", p.Config.Name),
			)
			return
		case <-ticker.C:
			cycle := logger.CompactRID(uuid.NewString())
			cycleCtx := logger.WithPanelMeta(ctx, p.Config.Name, cycle)
			if err := p.poll(cycleCtx); err != nil {
				logger.Warn(cycleCtx, "panel", "panel.poll.fail",
					slog.String("panel", p.Config.Name),
					slog.String("err", logger.Sanitize(err.Error())),
				)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	records, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	latest := records[0]
	message := latest.text()
	key := latest.Num + "-" + message
	if key == p.lastKey {
		return nil
	}
	p.lastKey = key

	handled, err := p.Sink.HandleMessage(ctx, latest.Num, message, latest.CLI, p.Config.Name)
	if err != nil {
		return fmt.Errorf("route record: %w", err)
	}
	if handled {
		logger.Debug(ctx, "panel", "panel.record",
			slog.String("panel", p.Config.Name),
			slog.String("number", otp.MaskNumber(latest.Num)),
			slog.String("service", latest.CLI),
		)
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context) ([]panelRecord, error) {
	reqURL, err := url.Parse(p.Config.URL)
	if err != nil {
		return nil, fmt.Errorf("panel url: %w", err)
	}
	q := reqURL.Query()
	q.Set("token", p.Config.Token)
	q.Set("records", strconv.Itoa(p.Config.Records))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var payload panelPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload.Data, nil
}
