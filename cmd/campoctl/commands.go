package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/leftonspace/CampoTech-sub005/pkg/business/xfallback"
	"github.com/leftonspace/CampoTech-sub005/pkg/business/xusage"
	"github.com/leftonspace/CampoTech-sub005/pkg/config/xconf"
)

// Collection names used by the gateway.
const (
	usageCollection   = "usage_records"
	recordsCollection = "fallback_records"
)

// usageError marks bad arguments, mapped to exit code 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "records",
			Usage: "manage fallback records",
			Commands: []*cli.Command{
				{
					Name:  "list",
					Usage: "list an organization's pending records",
					Flags: []cli.Flag{
						orgFlag(),
						&cli.IntFlag{Name: "limit", Usage: "max records to show", Value: 50},
					},
					Action: recordsList,
				},
				{
					Name:   "count",
					Usage:  "count an organization's pending records",
					Flags:  []cli.Flag{orgFlag()},
					Action: recordsCount,
				},
				{
					Name:      "assign",
					Usage:     "claim a record for an operator",
					ArgsUsage: "<record-id>",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "to", Usage: "operator taking the record", Required: true},
					},
					Action: recordsAssign,
				},
				{
					Name:      "resolve",
					Usage:     "close a record with a resolution note",
					ArgsUsage: "<record-id>",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "by", Usage: "operator resolving the record", Required: true},
						&cli.StringFlag{Name: "note", Usage: "what was done", Required: true},
					},
					Action: recordsResolve,
				},
				{
					Name:  "expire",
					Usage: "sweep stale pending records to expired",
					Flags: []cli.Flag{
						&cli.DurationFlag{Name: "ttl", Usage: "pending-record lifetime", Value: xfallback.DefaultExpiry},
					},
					Action: recordsExpire,
				},
			},
		},
		{
			Name:  "usage",
			Usage: "inspect usage and budgets",
			Commands: []*cli.Command{
				{
					Name:  "list",
					Usage: "list an organization's usage records",
					Flags: []cli.Flag{
						orgFlag(),
						&cli.DurationFlag{Name: "window", Usage: "how far back to look", Value: 24 * time.Hour},
					},
					Action: usageList,
				},
				{
					Name:   "budget",
					Usage:  "show an organization's budget posture",
					Flags:  []cli.Flag{orgFlag()},
					Action: usageBudget,
				},
			},
		},
	}
}

func orgFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "org",
		Usage:    "organization ID",
		Required: true,
	}
}

// withMongo connects, runs fn under the command timeout, and disconnects.
func withMongo(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, db *mongo.Database) error) error {
	client, err := mongo.Connect(options.Client().ApplyURI(cmd.String("mongo-uri")))
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	defer func() { _ = client.Disconnect(context.Background()) }()

	return fn(ctx, client.Database(cmd.String("db")))
}

func recordStore(db *mongo.Database) (*xfallback.Store, error) {
	return xfallback.NewStore(
		xfallback.WithDurableBackend(xfallback.NewMongoBackend(db.Collection(recordsCollection))),
	)
}

func recordsList(ctx context.Context, cmd *cli.Command) error {
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store, err := recordStore(db)
		if err != nil {
			return err
		}
		records, err := store.ListPending(ctx, cmd.String("org"), int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no pending records")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%d\t%s\t%s/%s\tref=%s\treason=%s\tcreated=%s\n",
				rec.ID, rec.Status, rec.Service, rec.Operation, rec.Ref, rec.Reason,
				rec.CreatedAt.Format(time.RFC3339))
		}
		return nil
	})
}

func recordsCount(ctx context.Context, cmd *cli.Command) error {
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store, err := recordStore(db)
		if err != nil {
			return err
		}
		n, err := store.CountPending(ctx, cmd.String("org"))
		if err != nil {
			return err
		}
		fmt.Printf("%d pending record(s)\n", n)
		return nil
	})
}

func recordID(cmd *cli.Command) (int64, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return 0, usageErrorf("missing record ID argument")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, usageErrorf("invalid record ID %q", arg)
	}
	return id, nil
}

func recordsAssign(ctx context.Context, cmd *cli.Command) error {
	id, err := recordID(cmd)
	if err != nil {
		return err
	}
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store, err := recordStore(db)
		if err != nil {
			return err
		}
		rec, err := store.Assign(ctx, id, cmd.String("to"))
		if err != nil {
			return err
		}
		fmt.Printf("record %d assigned to %s\n", rec.ID, rec.AssignedTo)
		return nil
	})
}

func recordsResolve(ctx context.Context, cmd *cli.Command) error {
	id, err := recordID(cmd)
	if err != nil {
		return err
	}
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store, err := recordStore(db)
		if err != nil {
			return err
		}
		rec, err := store.Resolve(ctx, id, cmd.String("by"), cmd.String("note"))
		if err != nil {
			return err
		}
		fmt.Printf("record %d resolved by %s: %s\n", rec.ID, rec.ResolvedBy, rec.Resolution)
		return nil
	})
}

func recordsExpire(ctx context.Context, cmd *cli.Command) error {
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store, err := recordStore(db)
		if err != nil {
			return err
		}
		n, err := store.ExpireStale(ctx, cmd.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Printf("expired %d record(s)\n", n)
		return nil
	})
}

func usageList(ctx context.Context, cmd *cli.Command) error {
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		store := xusage.NewMongoStore(db.Collection(usageCollection))
		now := time.Now()
		records, err := store.List(ctx, cmd.String("org"), now.Add(-cmd.Duration("window")), now)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no usage records in window")
			return nil
		}
		var total float64
		for _, rec := range records {
			fmt.Printf("%d\t%s\t%s\tin=%d out=%d\tcost=%.4f\t%s\n",
				rec.ID, rec.Kind, rec.Model, rec.InputUnits, rec.OutputUnits, rec.Cost,
				rec.RecordedAt.Format(time.RFC3339))
			total += rec.Cost
		}
		fmt.Printf("total: %.4f across %d record(s)\n", total, len(records))
		return nil
	})
}

func usageBudget(ctx context.Context, cmd *cli.Command) error {
	limits, err := loadLimits(cmd)
	if err != nil {
		return err
	}
	return withMongo(ctx, cmd, func(ctx context.Context, db *mongo.Database) error {
		tracker, err := xusage.NewTracker(
			xusage.NewMongoStore(db.Collection(usageCollection)),
			xusage.WithLimits(limits),
		)
		if err != nil {
			return err
		}
		st, err := tracker.BudgetStatus(ctx, cmd.String("org"))
		if err != nil {
			return err
		}
		fmt.Printf("organization: %s\n", st.OrgID)
		fmt.Printf("daily:   %.2f / %s (%.1f%%)\n", st.DailySpend, limitString(st.DailyLimit), st.DailyUsagePercent)
		fmt.Printf("monthly: %.2f / %s (%.1f%%)\n", st.MonthlySpend, limitString(st.MonthlyLimit), st.MonthlyUsagePercent)
		if st.CanProceed {
			fmt.Println("status: within budget")
		} else {
			fmt.Printf("status: blocked (%s)\n", st.BlockedReason)
		}
		return nil
	})
}

// loadLimits reads budget limits from the optional config file; without
// one, every organization is uncapped.
func loadLimits(cmd *cli.Command) (xusage.LimitsProvider, error) {
	path := cmd.String("config")
	if path == "" {
		return xusage.StaticLimits{}, nil
	}
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, err
	}
	gw, err := xconf.LoadGateway(cfg)
	if err != nil {
		return nil, err
	}

	perOrg := make(map[string]xusage.Limits, len(gw.Usage.OrgLimits))
	for org, l := range gw.Usage.OrgLimits {
		perOrg[org] = xusage.Limits{Daily: l.Daily, Monthly: l.Monthly}
	}
	return xusage.StaticLimits{
		PerOrg: perOrg,
		Default: xusage.Limits{
			Daily:   gw.Usage.DefaultLimits.Daily,
			Monthly: gw.Usage.DefaultLimits.Monthly,
		},
	}, nil
}

func limitString(limit float64) string {
	if limit <= 0 {
		return "uncapped"
	}
	return fmt.Sprintf("%.2f", limit)
}
