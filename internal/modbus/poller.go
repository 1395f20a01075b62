package modbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Poller exchanges an Image with the coupler on a fixed interval and
// reconnects after transport errors.
type Poller struct {
	client   *Client
	image    *Image
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
	failures int
}

func NewPoller(client *Client, image *Image, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		image:    image,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)
	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("coupler", p.client.Address()),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stops polling. The last coil image is flushed once more so outputs
// driven safe during shutdown reach the coupler.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.poll()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped", zap.String("coupler", p.client.Address()))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	if !p.client.Connected() {
		if err := p.client.Connect(); err != nil {
			p.fail(err)
			return
		}
		p.logger.Info("Coupler connected", zap.String("coupler", p.client.Address()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2+p.client.timeout)
	defer cancel()

	if err := p.image.Exchange(ctx, p.client, time.Now()); err != nil {
		p.fail(err)
		return
	}
	if p.failures > 0 {
		p.logger.Info("Coupler exchange recovered", zap.Int("failures", p.failures))
	}
	p.failures = 0
}

// fail logs the first failure of a streak and every hundredth after it.
func (p *Poller) fail(err error) {
	if p.failures%100 == 0 {
		p.logger.Error("Coupler exchange failed",
			zap.String("coupler", p.client.Address()),
			zap.Int("failures", p.failures+1),
			zap.Error(err))
	}
	p.failures++
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
