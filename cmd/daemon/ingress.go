package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	playsight "github.com/playsight/go-playsight"
	"github.com/playsight/go-playsight/emitter"
)

const ingressTimeout = 10 * time.Second

// IngressEvent is the wire form of one player or engine notification.
type IngressEvent struct {
	Source  string `json:"source"` // "player" or "engine"
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

type emitterSource struct{ ev *emitter.Emitter }

func (s *emitterSource) Events() *emitter.Emitter { return s.ev }

// Ingress dials the player bridge and replays its notifications onto the
// local player and engine emitters. All dispatch happens on the receive
// goroutine, which is what keeps the trackers single-threaded.
type Ingress struct {
	url string

	conn *websocket.Conn

	stop         bool
	recvLoopStop chan struct{}

	// connMu is held for writing when reconnecting and for reading when
	// accessing the conn.
	connMu sync.RWMutex

	player *emitterSource
	engine *emitterSource
}

func NewIngress(url string, logger playsight.Logger) *Ingress {
	return &Ingress{
		url:    url,
		player: &emitterSource{ev: emitter.NewEmitter(logger)},
		engine: &emitterSource{ev: emitter.NewEmitter(logger)},
	}
}

// Player is the emitter source the trackers attach to.
func (i *Ingress) Player() *emitterSource { return i.player }

// Engine is the sub-engine emitter source, handed to the startup tracker
// as the engine-attaching payload.
func (i *Ingress) Engine() *emitterSource { return i.engine }

func (i *Ingress) Connect(ctx context.Context) error {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	if i.conn != nil && !i.stop {
		log.Debugf("ingress connection already opened")
		return nil
	}

	return i.connect(ctx)
}

func (i *Ingress) connect(ctx context.Context) error {
	i.recvLoopStop = make(chan struct{}, 1)
	i.stop = false

	conn, _, err := websocket.Dial(ctx, i.url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"User-Agent": []string{playsight.VersionString()},
		},
		HTTPClient: &http.Client{Timeout: ingressTimeout},
	})
	if err != nil {
		return err
	}

	i.conn = conn
	log.Debugf("ingress connection opened")

	go i.recvLoop()
	return nil
}

func (i *Ingress) Close() {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	i.stop = true
	if i.conn == nil {
		return
	}

	i.recvLoopStop <- struct{}{}
	_ = i.conn.Close(websocket.StatusGoingAway, "")
}

func (i *Ingress) recvLoop() {
	for {
		select {
		case <-i.recvLoopStop:
			return
		default:
			var event IngressEvent
			i.connMu.RLock()
			conn := i.conn
			i.connMu.RUnlock()

			if err := wsjson.Read(context.Background(), conn, &event); err != nil {
				i.connMu.RLock()
				stopped := i.stop
				i.connMu.RUnlock()
				if stopped {
					return
				}

				log.WithError(err).Errorf("ingress read failed, reconnecting")
				if err := i.reconnect(); err != nil {
					log.WithError(err).Errorf("ingress reconnection failed")
					return
				}
				return
			}

			i.dispatch(&event)
		}
	}
}

func (i *Ingress) reconnect() error {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	if i.stop {
		return nil
	}

	_ = i.conn.Close(websocket.StatusInternalError, "reconnecting")

	return backoff.Retry(func() error {
		return i.connect(context.Background())
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
}

func (i *Ingress) dispatch(event *IngressEvent) {
	log.Tracef("ingress event %s/%s", event.Source, event.Name)

	if event.Source == "engine" {
		i.engine.ev.Emit(event.Name, event.Payload)
		return
	}

	// the engine handle cannot travel over the wire, substitute ours
	if event.Name == playsight.EventEngineAttaching {
		i.player.ev.Emit(event.Name, i.engine)
		return
	}

	i.player.ev.Emit(event.Name, event.Payload)
}

func (i *Ingress) Ping(ctx context.Context) error {
	i.connMu.RLock()
	defer i.connMu.RUnlock()

	if i.conn == nil {
		return fmt.Errorf("ingress not connected")
	}

	return i.conn.Ping(ctx)
}
