package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/ai/telemetry"
	"voxelmind.ai/internal/transport/debugws"
)

func main() {
	var (
		url    = flag.String("url", "ws://127.0.0.1:8081/debug/ws", "debug ws url")
		agents = flag.String("agents", "", "comma separated agent ids to follow (default: all)")
		kinds  = flag.String("kinds", "", "comma separated event kinds (default: all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	sub := debugws.SubscribeMsg{Type: debugws.TypeSubscribe, ProtocolVersion: debugws.Version}
	for _, s := range strings.Split(*agents, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			logger.Fatalf("bad agent id %q: %v", s, err)
		}
		sub.Agents = append(sub.Agents, id)
	}
	for _, k := range strings.Split(*kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			sub.Kinds = append(sub.Kinds, telemetry.Kind(strings.ToUpper(k)))
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("closed: %v", err)
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		switch base.Type {
		case debugws.TypeWelcome:
			var w debugws.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s", w.SessionID)

		case debugws.TypeEvent:
			var ev debugws.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			e := ev.Event
			switch e.Kind {
			case telemetry.PlanFound:
				logger.Printf("agent=%d plan root=%s steps=%s score=%.3f", e.Agent, e.Root, strings.Join(e.Steps, ","), e.Score)
			case telemetry.StepCompleted:
				logger.Printf("agent=%d step=%s done", e.Agent, e.Step)
			case telemetry.PlanFailed:
				logger.Printf("agent=%d plan root=%s failed step=%s outcome=%s", e.Agent, e.Root, e.Step, e.Outcome)
			case telemetry.PlanCompleted:
				logger.Printf("agent=%d plan root=%s completed", e.Agent, e.Root)
			case telemetry.PlanAborted:
				logger.Printf("agent=%d plan root=%s aborted reason=%s", e.Agent, e.Root, e.Outcome)
			}
		}
	}
}
