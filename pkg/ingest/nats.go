// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file subscribes to a NATS subject and decodes each message as a
// line-protocol-framed sample, adapted from the connection-management
// and reconnect-handling shape used elsewhere for NATS clients in this
// codebase's dependency stack.
package ingest

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/netsage-project/tscore/internal/log"
)

// NatsConfig configures the NATS ingestion transport.
type NatsConfig struct {
	Address string
	Subject string
	Queue   string // optional queue group for load-balanced consumption
}

// NatsSubscriber connects to NATS and feeds decoded samples into a Sink.
type NatsSubscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
	log  *log.Logger
}

// NewNatsSubscriber connects to cfg.Address and subscribes to
// cfg.Subject, decoding every message as line-protocol and dispatching
// it to sink. The subscription stays active until Close is called; ctx is
// passed to every Dispatch.
func NewNatsSubscriber(ctx context.Context, cfg NatsConfig, sink Sink, logger *log.Logger) (*NatsSubscriber, error) {
	l := logger.With("ingest.nats")

	nc, err := nats.Connect(cfg.Address,
		nats.ReconnectHandler(func(c *nats.Conn) { l.Infof("reconnected to %s", c.ConnectedUrl()) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warnf("disconnected: %v", err)
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			l.Errorf("nats error: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ingest: nats connect: %w", err)
	}

	handler := func(msg *nats.Msg) {
		if err := DecodeLineProtocol(ctx, msg.Data, sink); err != nil {
			l.Errorf("decode message on %s: %v", msg.Subject, err)
		}
	}

	var sub *nats.Subscription
	if cfg.Queue != "" {
		sub, err = nc.QueueSubscribe(cfg.Subject, cfg.Queue, handler)
	} else {
		sub, err = nc.Subscribe(cfg.Subject, handler)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ingest: nats subscribe to %q: %w", cfg.Subject, err)
	}

	l.Infof("subscribed to %q", cfg.Subject)
	return &NatsSubscriber{conn: nc, sub: sub, log: l}, nil
}

// Close unsubscribes and closes the underlying connection.
func (n *NatsSubscriber) Close() error {
	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.log.Warnf("unsubscribe failed: %v", err)
		}
	}
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
