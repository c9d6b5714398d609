/*
Package proctrace tracks long-running backend operations as live, hierarchical traces and
streams them to observers in real time.

A process is a named tree of steps. Each node carries a status, timing and an append-only log.
Every mutation is broadcast as a copy of the whole process to the observer sessions subscribed
to the process topic, PROCESS_CONSOLE/<name>. When the process finishes, its final state is
persisted as a JSON snapshot and dropped from memory; queries then fall back to the snapshot.

# Usage

	tracker, err := proctrace.New(".")
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close(context.Background())

	req := tracing.Request{Type: domain.ProcessSubmit, ID: "42"}
	err = tracker.Run(ctx, req, func(ctx context.Context) error {
		return tracker.Step(ctx, domain.StepCompile, func(ctx context.Context) error {
			tracker.Logger().InfoContext(ctx, "compiling")
			return nil
		})
	})

Observers connect to Handler: GET /api/sse/connect?sessionKey=<id> opens a server-sent event
stream, POST /api/sse/subscribe selects topics, DELETE /api/sse/<id> closes it.
*/
package proctrace
