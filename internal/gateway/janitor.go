package gateway

import (
	"errors"
	"strings"

	robcron "github.com/robfig/cron/v3"
)

// Janitor prunes empty rooms on a fixed schedule. Membership maps mostly
// clean themselves up on leave; the janitor catches what a dropped
// connection left behind.
type Janitor struct {
	cron *robcron.Cron
}

// StartJanitor schedules PruneEmpty against the gateway's registry.
// Schedule uses the standard five-field cron syntax; empty means every
// five minutes.
func StartJanitor(g *Gateway, schedule string, logf func(format string, args ...any)) (*Janitor, error) {
	if g == nil {
		return nil, errors.New("gateway is required")
	}
	expr := strings.TrimSpace(schedule)
	if expr == "" {
		expr = "*/5 * * * *"
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	c := robcron.New()
	_, err := c.AddFunc(expr, func() {
		if n := g.Registry().PruneEmpty(); n > 0 {
			logf("janitor: pruned %d empty rooms", n)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &Janitor{cron: c}, nil
}

func (j *Janitor) Stop() {
	if j == nil || j.cron == nil {
		return
	}
	ctx := j.cron.Stop()
	<-ctx.Done()
}
