package nextion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/KevinKickass/OpenRigCore/internal/display"
	"go.uber.org/zap"
)

// Components maps panel components to operator control names.
type Components map[Key]string

// Panel writes display commands to the serial line.
type Panel struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPanel(w io.Writer) *Panel {
	return &Panel{w: w}
}

// Send writes one raw command.
func (p *Panel) Send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(Encode(cmd)); err != nil {
		return fmt.Errorf("nextion write %q: %w", cmd, err)
	}
	return nil
}

// Reset restarts the panel. The leading terminator flushes whatever the
// panel received before the controller came up.
func (p *Panel) Reset() error {
	p.mu.Lock()
	_, err := p.w.Write(terminator)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("nextion write: %w", err)
	}
	return p.Send("rest")
}

func (p *Panel) SetText(component, text string) error {
	return p.Send(component + ".txt=" + strconv.Quote(text))
}

func (p *Panel) SetValue(component string, v int64) error {
	return p.Send(component + ".val=" + strconv.FormatInt(v, 10))
}

func (p *Panel) SetVisible(component string, on bool) error {
	return p.Send("vis " + component + "," + bit(on))
}

func (p *Panel) SetSwitch(component string, on bool) error {
	return p.Send(component + ".val=" + bit(on))
}

func (p *Panel) Press(component string, down bool) error {
	return p.Send("click " + component + "," + bit(down))
}

func (p *Panel) SetColor(component string, color uint16) error {
	return p.Send(component + ".bco=" + strconv.Itoa(int(color)))
}

func (p *Panel) ShowPage(page int) error {
	return p.Send("page " + strconv.Itoa(page))
}

func bit(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

var _ display.Panel = (*Panel)(nil)

// Link reads touch events from the panel and queues them on the
// dispatcher.
type Link struct {
	port       io.ReadWriteCloser
	panel      *Panel
	components Components
	dispatcher *display.Dispatcher
	logger     *zap.Logger

	started bool
	done    chan struct{}
}

func NewLink(port io.ReadWriteCloser, components Components, dispatcher *display.Dispatcher, logger *zap.Logger) *Link {
	return &Link{
		port:       port,
		panel:      NewPanel(port),
		components: components,
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (l *Link) Panel() *Panel { return l.panel }

// Start launches the reader goroutine. It ends when the port is closed.
func (l *Link) Start(ctx context.Context) {
	l.started = true
	go l.readLoop(ctx)
}

// Close closes the port and waits for the reader.
func (l *Link) Close() error {
	err := l.port.Close()
	if l.started {
		<-l.done
	}
	return err
}

func (l *Link) readLoop(ctx context.Context) {
	defer close(l.done)

	scanner := bufio.NewScanner(l.port)
	scanner.Split(ScanFrames)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		l.handle(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		l.logger.Warn("Nextion link closed", zap.Error(err))
	}
}

func (l *Link) handle(frame []byte) {
	if len(frame) == 0 {
		return
	}
	touch, ok, err := ParseFrame(frame)
	if err != nil {
		l.logger.Debug("Dropping nextion frame", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	control, known := l.components[touch.Key]
	if !known {
		l.logger.Debug("Touch on unmapped component",
			zap.Uint8("page", touch.Page), zap.Uint8("id", touch.ID))
		return
	}
	action := display.Released
	if touch.Pressed {
		action = display.Pressed
	}
	if err := l.dispatcher.Enqueue(display.Event{Control: control, Action: action}); err != nil {
		l.logger.Warn("Operator event dropped", zap.String("control", control), zap.Error(err))
	}
}
