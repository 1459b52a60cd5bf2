package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/backend/coop"
	"github.com/embedkit/osal/backend/native"
	"github.com/embedkit/osal/diag"
	"github.com/embedkit/osal/queue"
	"github.com/embedkit/osal/system"
)

const (
	demoItems      = 32
	demoIncrements = 50
)

// demoCounters aggregates what the workload tasks accomplished.
type demoCounters struct {
	consumed   atomic.Uint32
	counter    atomic.Uint32
	heartbeats atomic.Uint32
	rendezvous atomic.Uint32
}

// buildWorkload creates the demo tasks: a producer/consumer pair over a
// pool-backed queue, two mutex-protected counter workers, a three-party
// event rendezvous, and a periodic heartbeat timer. Returns the task
// handles so the caller can wait for completion.
func buildWorkload(s *system.System, c *demoCounters) ([]osal.Handle, error) {
	be := s.Backend()
	var tasks []osal.Handle

	qh, st := s.CreateQueue(4, 8, queue.Normal)
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create queue")
	}
	mh, st := s.CreateMutex()
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create mutex")
	}
	eh, st := s.CreateEventGroup()
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create event group")
	}
	th, st := s.CreateTimer("heartbeat", 10, true, func() { c.heartbeats.Add(1) })
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create timer")
	}
	s.StartTimer(th)

	h, st := s.CreateTask("producer", 10, func(ctx context.Context) {
		buf := make([]byte, 4)
		for i := uint32(1); i <= demoItems; i++ {
			binary.LittleEndian.PutUint32(buf, i)
			s.SendQueue(ctx, qh, buf, osal.WaitForever)
		}
	})
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create producer")
	}
	tasks = append(tasks, h)

	h, st = s.CreateTask("consumer", 10, func(ctx context.Context) {
		buf := make([]byte, 4)
		for i := 0; i < demoItems; i++ {
			if s.ReceiveQueue(ctx, qh, buf, osal.WaitForever) == osal.StatusOk {
				c.consumed.Add(1)
			}
		}
	})
	if !st.Ok() {
		return nil, osal.Errorf(st, "demo", "create consumer")
	}
	tasks = append(tasks, h)

	for w := 0; w < 2; w++ {
		h, st = s.CreateTask(fmt.Sprintf("worker-%d", w), 5, func(ctx context.Context) {
			for i := 0; i < demoIncrements; i++ {
				if s.LockMutex(ctx, mh, osal.WaitForever) == osal.StatusOk {
					c.counter.Add(1)
					s.UnlockMutex(ctx, mh)
				}
				be.Yield(ctx)
			}
		})
		if !st.Ok() {
			return nil, osal.Errorf(st, "demo", "create worker")
		}
		tasks = append(tasks, h)
	}

	for _, bit := range []uint32{0x1, 0x2, 0x4} {
		bit := bit
		h, st = s.CreateTask("party", 5, func(ctx context.Context) {
			if _, st := s.SyncEvents(ctx, eh, bit, 0x7, osal.WaitForever); st.Ok() {
				c.rendezvous.Add(1)
			}
		})
		if !st.Ok() {
			return nil, osal.Errorf(st, "demo", "create party")
		}
		tasks = append(tasks, h)
	}

	return tasks, nil
}

func runDemo(cfg osal.Config, backendName string, ticks uint64) error {
	switch backendName {
	case "coop":
		return runCoopDemo(cfg, ticks)
	default:
		return runNativeDemo(cfg, ticks)
	}
}

func runNativeDemo(cfg osal.Config, ticks uint64) error {
	be := native.NewWithInterval(time.Duration(cfg.TickIntervalMicros) * time.Microsecond)
	s, err := system.New(cfg, be)
	if err != nil {
		return err
	}
	defer s.Close()

	var c demoCounters
	tasks, err := buildWorkload(s, &c)
	if err != nil {
		return err
	}

	pumpCtx, stopPump := context.WithCancel(context.Background())
	defer stopPump()
	go s.Timers().Run(pumpCtx)

	deadline := time.Now().Add(10 * time.Second)
	for _, h := range tasks {
		for {
			ref, _ := s.Task(h)
			if ref == nil || ref.State() == osal.TaskDeleted {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("demo workload did not finish")
			}
			time.Sleep(time.Millisecond)
		}
	}
	// Let the heartbeat run out the requested duration.
	for be.Now() < ticks && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stopPump()

	printResults(s, &c)
	return nil
}

func runCoopDemo(cfg osal.Config, ticks uint64) error {
	sched := coop.New()
	s, err := system.New(cfg, sched)
	if err != nil {
		return err
	}
	defer s.Close()

	var c demoCounters
	if _, err := buildWorkload(s, &c); err != nil {
		return err
	}

	// The loop owns time on this backend: one task injects ticks and drives
	// the timer service.
	_, st := s.CreateTask("housekeeper", 1, func(ctx context.Context) {
		for i := uint64(0); i < ticks; i++ {
			sched.Tick()
			s.Advance(1)
			sched.Yield(ctx)
		}
	})
	if !st.Ok() {
		return osal.Errorf(st, "demo", "create housekeeper")
	}

	if err := sched.Run(); err != nil {
		return err
	}

	printResults(s, &c)
	return nil
}

func printResults(s *system.System, c *demoCounters) {
	fmt.Printf("demo complete on %s backend\n", s.Backend().Name())
	fmt.Printf("  consumed %d/%d items, counter %d/%d, rendezvous %d/3, heartbeats %d\n\n",
		c.consumed.Load(), demoItems,
		c.counter.Load(), 2*demoIncrements,
		c.rendezvous.Load(), c.heartbeats.Load())
	fmt.Println(diag.NewCollector(s).Report().String())
}
