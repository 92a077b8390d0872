package calendar_sync

import (
	"context"

	"github.com/calshare/calshare/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

const (
	TriggerEventCreated     = "event.created"
	TriggerCalendarImported = "calendar.imported"
)

// Rule is a user-defined automation matched against imported events.
type Rule struct {
	Id      int
	Name    string
	Trigger string
}

// Automation is the optional rule engine. A nil Automation disables it.
type Automation interface {
	FindRules(ctx context.Context, userId int, triggerTypes []string) ([]Rule, error)
	ExecuteRule(ctx context.Context, rule Rule, event calendar.Event) error
}

func (o *Orchestrator) runAutomation(ctx context.Context, userId int, imported []calendar.Event) {
	if o.automation == nil || len(imported) == 0 {
		return
	}
	rules, err := o.automation.FindRules(ctx, userId, []string{TriggerEventCreated, TriggerCalendarImported})
	if err != nil {
		log.Errorf("failed to find automation rules of user %d: %v", userId, err)
		return
	}
	for _, event := range imported {
		for _, rule := range rules {
			if err := o.automation.ExecuteRule(ctx, rule, event); err != nil {
				log.Errorf("automation rule %d failed for event %s: %v", rule.Id, event.Id, err)
			}
		}
	}
}
