// Package osal provides an operating-system abstraction layer for embedded
// style workloads: tasks, mutexes, counting semaphores, bounded message
// queues, bit-flag event groups, software timers, and a guard-banded heap
// allocator, all portable across interchangeable scheduler backends.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	osal/            Root package with status codes, resource kinds, and the
//	                 Backend/Region/WaitQueue interfaces every primitive uses
//	├── handle/      Generation-indexed handle registry and validator
//	├── stats/       Per-kind resource accounting and the fault callback
//	├── mem/         Guard-banded fixed-pool allocator with integrity checks
//	├── sync/        Mutex, Semaphore, and EventGroup primitives
//	├── queue/       Bounded message queue with Normal and Overwrite modes
//	├── timer/       Tick-driven one-shot and periodic software timers
//	├── task/        Task lifecycle facade over the scheduler backend
//	├── backend/
//	│   ├── native/  Preemptive backend built on goroutines
//	│   └── coop/    Single-threaded cooperative run-to-completion backend
//	├── system/      Wiring: one owning object for a configured OSAL instance
//	└── diag/        Read-only diagnostics aggregation and corruption logging
//
// # Quick Start
//
// Create a system on the native backend and use a queue between two tasks:
//
//	be := native.New()
//	defer be.Shutdown()
//
//	sys, err := system.New(osal.DefaultConfig(), be)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Close()
//
//	qh, _ := sys.CreateQueue(4, 16, queue.Normal)
//	sys.CreateTask("producer", 10, func(ctx context.Context) {
//	    item := []byte{1, 2, 3, 4}
//	    sys.SendQueue(ctx, qh, item, osal.WaitForever)
//	})
//
// # Backends
//
// Every blocking primitive depends only on the Backend interface. The native
// backend maps tasks to goroutines and regions to mutexes; the cooperative
// backend reproduces bare-metal semantics with a single run loop, a ready
// ring, and per-resource wait lists, so exactly one task executes at a time
// and blocking calls are the only suspension points.
//
// # Status Codes
//
// Fallible operations return a Status rather than an error. Corruption
// detected by the allocator is reported through the process-wide fault
// callback (see the stats package) and surfaced as StatusCorrupted; it never
// panics, callers decide whether to halt.
//
// # Interrupt Context
//
// Calls made from a simulated interrupt service routine (Backend.DispatchISR)
// carry an ISR marker in their context. Blocking entry points reject such
// calls with StatusIsr; non-blocking calls work from either context and
// never trigger a synchronous task switch.
package osal
