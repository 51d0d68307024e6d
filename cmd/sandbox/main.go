package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"voxelmind.ai/internal/ai/agent"
	"voxelmind.ai/internal/ai/behaviors"
	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/sensory"
	"voxelmind.ai/internal/ai/telemetry"
	"voxelmind.ai/internal/persistence/indexdb"
	persistlog "voxelmind.ai/internal/persistence/log"
	"voxelmind.ai/internal/sim/catalogs"
	"voxelmind.ai/internal/sim/sandbox"
	"voxelmind.ai/internal/sim/tuning"
	"voxelmind.ai/internal/transport/debugws"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8081", "debug http listen address (empty to disable)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite plan index")
		ticks      = flag.Int("ticks", 0, "stop after this many ticks (0 runs until interrupted)")
		fast       = flag.Bool("fast", false, "tick as fast as possible instead of at tick_rate_hz")
		seed       = flag.Uint64("seed", 0, "override planner_seed (0 keeps tuning)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sandbox] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *seed != 0 {
		tune.PlannerSeed = *seed
	}

	world := sandbox.New(sandbox.Config{
		Width:       tune.Sandbox.Width,
		Height:      tune.Sandbox.Height,
		Speed:       tune.Sandbox.Speed,
		HungerEvery: tune.Sandbox.HungerEvery(),
	})

	lib := behaviors.NewLibrary(world)
	lib.VisionRadius = tune.VisionRadius
	reg := blackboard.NewRegistry()
	if err := lib.Register(reg); err != nil {
		logger.Fatalf("register facts: %v", err)
	}
	cats, err := catalogs.Load(*configDir, lib)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	if len(cats.Archetypes.IDs) == 0 {
		logger.Fatalf("no archetypes in %s", *configDir)
	}
	if err := lib.Check(reg, cats); err != nil {
		logger.Fatalf("check archetypes: %v", err)
	}

	plans := persistlog.NewPlanLogger(*dataDir, logger)
	defer func() {
		if err := plans.Close(); err != nil {
			logger.Printf("close plan log: %v", err)
		}
	}()
	sinks := telemetry.Fanout{plans}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "plans.sqlite"), indexdb.Options{Logger: logger})
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer func() { _ = idx.Close() }()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
		sinks = append(sinks, idx)
	}

	hub := debugws.NewHub(logger)
	sinks = append(sinks, hub)

	var stats runStats
	mgr := agent.NewManager(world, sensory.New(world, tune.SensoryTTL()), reg, agent.ManagerConfig{
		Loop: agent.Config{
			ReplanCooldown: tune.ReplanCooldown(),
			PlannerSeed:    tune.PlannerSeed,
			Logger:         logger,
			Sink:           sinks,
		},
		BlackboardTTL: tune.BlackboardTTL(),
		Workers:       tune.Workers,
		Fallback:      func(l *agent.Loop) bt.Node { return park(world, &stats, l.ID()) },
	})

	rng := rand.New(rand.NewPCG(tune.PlannerSeed, uint64(tune.Sandbox.Width*tune.Sandbox.Height)))
	world.ScatterWalls(rng, tune.Sandbox.Walls)
	s := tune.Sandbox
	for i, c := range world.FreeCells(rng, s.AgentCount) {
		archID := cats.Archetypes.IDs[i%len(cats.Archetypes.IDs)]
		arch, _ := cats.Archetype(archID)
		hunger := behaviors.Hunger{Satiety: rng.IntN(s.SatietyMax + 1), Max: s.SatietyMax, HungryAt: s.HungryAt}
		id := world.SpawnAgent(c, arch.Hands, hunger)
		if _, err := mgr.Add(id, lib.Configure(cats, archID)); err != nil {
			logger.Fatalf("agent %d archetype=%s: %v", id, archID, err)
		}
		logger.Printf("agent=%d archetype=%s cell=%d,%d hands=%d satiety=%d", id, archID, c.X, c.Y, arch.Hands, hunger.Satiety)
	}
	world.Replenish(rng, s.FoodCount, s.FoodNutrition)

	ctx, cancel := signalContext()
	defer cancel()

	if *addr != "" {
		srv := &http.Server{Addr: *addr, Handler: newMux(hub, &stats, idx)}
		go func() {
			logger.Printf("debug listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("http: %v", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	dt := tune.TickDuration()
	var ticker *time.Ticker
	if !*fast {
		ticker = time.NewTicker(dt)
		defer ticker.Stop()
	}
	for n := 0; *ticks == 0 || n < *ticks; n++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		world.Step(dt)
		world.Replenish(rng, s.FoodCount, s.FoodNutrition)
		stats.record(mgr.Tick(dt))
	}
	logger.Printf("done ticks=%d parked=%d plans_written=%d", stats.ticks.Load(), stats.parked.Load(), plans.Written())
}

type runStats struct {
	ticks     atomic.Uint64
	running   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	idle      atomic.Uint64
	parked    atomic.Uint64
}

// park is the fallback for an agent with nothing to run: it stands still
// until its loop picks up a plan again.
func park(world *sandbox.World, stats *runStats, id entity.ID) bt.Node {
	return bt.New(bt.Sequence,
		bt.New(func([]bt.Node) (bt.Status, error) {
			if !world.Exists(id) {
				return bt.Failure, nil
			}
			return bt.Success, nil
		}),
		bt.New(func([]bt.Node) (bt.Status, error) {
			world.StopSteering(id)
			stats.parked.Add(1)
			return bt.Success, nil
		}),
	)
}

func (s *runStats) record(st []agent.Status) {
	s.ticks.Add(1)
	for _, v := range st {
		switch v {
		case agent.Running:
			s.running.Add(1)
		case agent.Completed:
			s.completed.Add(1)
		case agent.Failed:
			s.failed.Add(1)
		default:
			s.idle.Add(1)
		}
	}
}

func newMux(hub *debugws.Hub, stats *runStats, idx *indexdb.SQLiteIndex) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP voxelmind_ticks Ticks run so far.\n")
		fmt.Fprintf(rw, "# TYPE voxelmind_ticks counter\n")
		fmt.Fprintf(rw, "voxelmind_ticks %d\n", stats.ticks.Load())

		fmt.Fprintf(rw, "# HELP voxelmind_agent_ticks Agent ticks by status.\n")
		fmt.Fprintf(rw, "# TYPE voxelmind_agent_ticks counter\n")
		fmt.Fprintf(rw, "voxelmind_agent_ticks{status=%q} %d\n", agent.Running.String(), stats.running.Load())
		fmt.Fprintf(rw, "voxelmind_agent_ticks{status=%q} %d\n", agent.Completed.String(), stats.completed.Load())
		fmt.Fprintf(rw, "voxelmind_agent_ticks{status=%q} %d\n", agent.Failed.String(), stats.failed.Load())
		fmt.Fprintf(rw, "voxelmind_agent_ticks{status=%q} %d\n", agent.Idle.String(), stats.idle.Load())

		fmt.Fprintf(rw, "# HELP voxelmind_parked_ticks Agent ticks handled by the park fallback.\n")
		fmt.Fprintf(rw, "# TYPE voxelmind_parked_ticks counter\n")
		fmt.Fprintf(rw, "voxelmind_parked_ticks %d\n", stats.parked.Load())

		hs := hub.Stats()
		fmt.Fprintf(rw, "# HELP voxelmind_debug_sessions Connected debug websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxelmind_debug_sessions gauge\n")
		fmt.Fprintf(rw, "voxelmind_debug_sessions %d\n", hs.Sessions)
		fmt.Fprintf(rw, "voxelmind_debug_dropped %d\n", hs.Dropped)

		if idx != nil {
			is := idx.Stats()
			fmt.Fprintf(rw, "# HELP voxelmind_index_events Plan index writer counters.\n")
			fmt.Fprintf(rw, "# TYPE voxelmind_index_events counter\n")
			fmt.Fprintf(rw, "voxelmind_index_events{result=%q} %d\n", "written", is.Written)
			fmt.Fprintf(rw, "voxelmind_index_events{result=%q} %d\n", "dropped", is.Dropped)
			fmt.Fprintf(rw, "voxelmind_index_queue_depth %d\n", is.QueueDepth)
		}
	})
	mux.HandleFunc("/debug/ws", hub.WSHandler())
	mux.HandleFunc("/debug/stats", hub.StatsHandler())
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
