package agent

import (
	"time"

	bt "github.com/joeycumines/go-behaviortree"
)

// Node exposes the loop as a behaviour-tree leaf that ticks it by dt.
//
// A completed plan maps to Success and a running one to Running. Failure
// covers both a failed plan and an idle tick, so a Selector parent can fall
// through to a fallback branch when the agent has nothing to do.
func (l *Loop) Node(dt time.Duration) bt.Node {
	return l.node(dt, nil)
}

func (l *Loop) node(dt time.Duration, last *Status) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		st := l.Tick(dt)
		if last != nil {
			*last = st
		}
		switch st {
		case Running:
			return bt.Running, nil
		case Completed:
			return bt.Success, nil
		default:
			return bt.Failure, nil
		}
	})
}

// tree ticks l under bt.Selector(loop, fallback(l)) and reports the loop's
// own status.
func tree(l *Loop, dt time.Duration, fallback func(*Loop) bt.Node) Status {
	var st Status
	root := bt.New(bt.Selector, l.node(dt, &st), fallback(l))
	if _, err := root.Tick(); err != nil {
		l.logger.Printf("agent=%d fallback err=%v", l.id, err)
	}
	return st
}
