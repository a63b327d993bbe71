package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/orders"
	"github.com/buildtall-systems/printq/internal/revenue"
)

// digestActor reads the whole order collection on behalf of the scheduler.
var digestActor = identity.Actor{ID: "digest@printq", Role: identity.RoleAdmin, DisplayName: "digest"}

// digest is one day's revenue and production summary.
type digest struct {
	Day      revenue.Day
	Finished orders.FinishedStats
}

// buildDigest fetches a fresh snapshot and summarizes now's calendar day.
func buildDigest(ctx context.Context, f orders.Fetcher, now time.Time, loc *time.Location) (digest, error) {
	store := orders.NewStore(f, digestActor)
	list, err := store.Load(ctx)
	if err != nil {
		return digest{}, err
	}

	day, ok := dayOf(revenue.Aggregate(list, loc), now, loc)
	if !ok {
		day = revenue.Day{Date: now.In(loc)}
	}
	return digest{Day: day, Finished: store.FinishedToday(now, loc)}, nil
}

func dayOf(series []revenue.Day, now time.Time, loc *time.Location) (revenue.Day, bool) {
	label := now.In(loc).Format(time.DateOnly)
	for _, d := range series {
		if d.Label() == label {
			return d, true
		}
	}
	return revenue.Day{}, false
}

// scheduleDigest logs a digest on spec. It returns nil when spec is empty.
func scheduleDigest(ctx context.Context, spec string, f orders.Fetcher, loc *time.Location, logger *slog.Logger) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		d, err := buildDigest(ctx, f, time.Now(), loc)
		if err != nil {
			logger.Error("building revenue digest failed", "error", err)
			return
		}
		logger.Info("daily digest",
			"date", d.Day.Label(),
			"orders", d.Day.Orders,
			"revenue", d.Day.Revenue.StringFixed(2),
			"expenses", d.Day.Expenses.StringFixed(2),
			"profit", d.Day.Profit.StringFixed(2),
			"finished", d.Finished.Finished,
			"delivered", d.Finished.Delivered,
			"pages", d.Finished.Pages,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling digest %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
