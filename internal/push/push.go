// Package push delivers check-in notifications to registered endpoints.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind selects the transport for an endpoint.
type Kind string

const (
	KindWebhook Kind = "webhook"
	KindDiscord Kind = "discord"
)

// ErrUnknownKind is returned by Router for endpoints with an unregistered kind.
var ErrUnknownKind = errors.New("unknown endpoint kind")

// Endpoint is one delivery target for an owner.
type Endpoint struct {
	OwnerID string `json:"owner_id"`
	Kind    Kind   `json:"kind"`
	// Address is a URL for webhooks and a channel id for discord.
	Address string `json:"address"`
	// Secret signs webhook bodies when set.
	Secret    string `json:"-"`
	CreatedAt int64  `json:"created_at"`
}

// Validate checks the fields needed to deliver to the endpoint.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return fmt.Errorf("owner_id is required")
	}
	if strings.TrimSpace(e.Address) == "" {
		return fmt.Errorf("address is required")
	}
	switch e.Kind {
	case KindWebhook:
		u, err := url.Parse(e.Address)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook address must be an http(s) URL")
		}
	case KindDiscord:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Transport sends one payload to one endpoint. Implementations do not retry.
type Transport interface {
	Send(ctx context.Context, ep Endpoint, p Payload) error
}

// Router dispatches to a Transport by endpoint kind.
type Router struct {
	transports map[Kind]Transport
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{transports: make(map[Kind]Transport)}
}

// Handle registers t for kind.
func (r *Router) Handle(kind Kind, t Transport) *Router {
	r.transports[kind] = t
	return r
}

// Send implements Transport.
func (r *Router) Send(ctx context.Context, ep Endpoint, p Payload) error {
	t, ok := r.transports[ep.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ep.Kind)
	}
	return t.Send(ctx, ep, p)
}
