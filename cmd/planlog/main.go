package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"voxelmind.ai/internal/ai/telemetry"
	persistlog "voxelmind.ai/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory containing plans/")
		agentID = flag.Uint64("agent", 0, "only this agent (optional)")
		root    = flag.String("root", "", "only plans with this root or action (optional)")
		kinds   = flag.String("kinds", "", "comma separated event kinds, e.g. PLAN_FOUND,PLAN_FAILED (optional)")
		asJSON  = flag.Bool("json", false, "print raw JSON lines")
		summary = flag.Bool("summary", false, "print per-root counts instead of events")
	)
	flag.Parse()

	f := persistlog.Filter{Agent: *agentID, Root: strings.TrimSpace(*root)}
	for _, k := range strings.Split(*kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			f.Kinds = append(f.Kinds, telemetry.Kind(strings.ToUpper(k)))
		}
	}

	type counts struct{ found, completed, failed, unsupported, aborted int }
	byRoot := map[string]*counts{}
	var roots []string
	n := 0
	enc := json.NewEncoder(os.Stdout)

	err := persistlog.ReadPlans(*dataDir, f, func(e telemetry.Event) error {
		n++
		if *summary {
			c, ok := byRoot[e.Root]
			if !ok {
				c = &counts{}
				byRoot[e.Root] = c
				roots = append(roots, e.Root)
			}
			switch e.Kind {
			case telemetry.PlanFound:
				c.found++
			case telemetry.PlanCompleted:
				c.completed++
			case telemetry.PlanFailed:
				c.failed++
				if e.Unsupported {
					c.unsupported++
				}
			case telemetry.PlanAborted:
				c.aborted++
			}
			return nil
		}
		if *asJSON {
			return enc.Encode(e)
		}
		fmt.Println(formatEvent(e))
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read plans:", err)
		os.Exit(1)
	}

	if *summary {
		for _, r := range roots {
			c := byRoot[r]
			fmt.Printf("root=%s found=%d completed=%d failed=%d unsupported=%d aborted=%d\n", r, c.found, c.completed, c.failed, c.unsupported, c.aborted)
		}
	}
	fmt.Fprintf(os.Stderr, "events=%d\n", n)
}

func formatEvent(e telemetry.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%dms agent=%d %s root=%s", e.AtMS, e.Agent, e.Kind, e.Root)
	switch e.Kind {
	case telemetry.PlanFound:
		fmt.Fprintf(&b, " steps=[%s]", strings.Join(e.Steps, ","))
		if e.Score != 0 {
			fmt.Fprintf(&b, " score=%.3f", e.Score)
		}
	case telemetry.StepCompleted:
		fmt.Fprintf(&b, " step=%s", e.Step)
	case telemetry.PlanFailed:
		fmt.Fprintf(&b, " step=%s outcome=%s", e.Step, e.Outcome)
	case telemetry.PlanAborted:
		fmt.Fprintf(&b, " reason=%s", e.Outcome)
	}
	if e.PlanID != "" {
		fmt.Fprintf(&b, " plan=%s", e.PlanID)
	}
	return b.String()
}
