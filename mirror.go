/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Seednode/quizbox/quiz"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// Mirror forwards events to another Broadcaster and republishes every
// session-wide event on <subject>.<code>. Events for a single connection are
// not mirrored.
type Mirror struct {
	next    quiz.Broadcaster
	pub     publisher
	subject string
	log     zerolog.Logger
}

func newMirror(next quiz.Broadcaster, pub publisher, subject string, log zerolog.Logger) *Mirror {
	return &Mirror{
		next:    next,
		pub:     pub,
		subject: subject,
		log:     log,
	}
}

func (m *Mirror) Broadcast(code string, ev quiz.Event) {
	m.next.Broadcast(code, ev)

	data, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Str("code", code).Msg("marshal mirrored event")
		return
	}

	// nats buffers outgoing messages, so this does not block on the network.
	if err := m.pub.Publish(m.subject+"."+code, data); err != nil {
		m.log.Warn().Err(err).Str("code", code).Str("event", string(ev.Type)).Msg("mirror publish failed")
	}
}

func (m *Mirror) Send(code string, to quiz.Handle, ev quiz.Event) {
	m.next.Send(code, to, ev)
}

func connectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("quizbox"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return nc, nil
}
