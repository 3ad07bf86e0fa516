package network

import (
	"context"
	"net/http"
	"time"
)

// Probe drives a Hub by periodically issuing a HEAD request against a
// well-known endpoint. A host process without radio introspection can
// only distinguish connected from disconnected, so a successful probe
// reports WiFi.
type Probe struct {
	hub      *Hub
	url      string
	interval time.Duration
	client   *http.Client
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewProbe(hub *Hub, url string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Probe{
		hub:      hub,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Start begins probing until Stop is called.
func (p *Probe) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.hub.Set(p.check(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.hub.Set(p.check(ctx))
			}
		}
	}()
}

func (p *Probe) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Probe) check(ctx context.Context) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return StateDisconnected
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return StateDisconnected
	}
	_ = resp.Body.Close()
	return StateWiFi
}
