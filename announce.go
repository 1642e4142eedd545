package main

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const serviceType = "_http._tcp"

// announce advertises the web front end over mDNS until ctx is done.
func announce(ctx context.Context, name string, port int, logger *log.Logger) error {
	sv, err := dnssd.NewService(dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
		Text: map[string]string{"path": "/", "ws": "/ws"},
	})
	if err != nil {
		return fmt.Errorf("dnssd service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("dnssd responder: %w", err)
	}
	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("dnssd add: %w", err)
	}
	logger.Info("announcing", "name", name, "type", serviceType, "port", port)
	err = rp.Respond(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
