package gsp

import (
	"errors"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RunOptions configures the Fleet Supervisor (spec.md §4.6). MaxRetries
// defaults to 10; callers running read-only operations (e.g. status) pass 0.
type RunOptions struct {
	MaxRetries int           `default:"10"`
	Backoff    time.Duration `default:"5s"`
}

// DefaultRunOptions returns options with the spec.md defaults applied.
func DefaultRunOptions() RunOptions {
	var o RunOptions
	defaults.SetDefaults(&o)
	return o
}

// Outcome is one serial's final result after all retry rounds.
type Outcome struct {
	Serial  string
	Success bool
	Err     error
}

// Operation runs against one serial and reports success/failure. It owns its
// own Session end-to-end (open, connect, act, close) — the Supervisor never
// shares a Session across attempts (spec.md §3 "Ownership").
type Operation func(serial string) error

// RunFleet executes op for every serial, retrying only the serials that
// failed, waiting opts.Backoff between rounds, for up to opts.MaxRetries
// rounds or until every serial has succeeded (spec.md §4.6). A serial that
// failed with a ProtocolError is not retried. Each round runs
// its serials in parallel; results are returned in the caller's original
// serial order regardless of which round resolved them.
func RunFleet(serials []string, op Operation, opts RunOptions) []Outcome {
	pending := orderedmap.New[string, error]()
	for _, serial := range serials {
		pending.Set(serial, nil)
	}

	results := make(map[string]Outcome, len(serials))

	for attempt := 0; ; attempt++ {
		if pending.Len() == 0 {
			break
		}

		type roundResult struct {
			serial string
			err    error
		}
		resultCh := make(chan roundResult, pending.Len())

		for pair := pending.Oldest(); pair != nil; pair = pair.Next() {
			serial := pair.Key
			go func(serial string) {
				resultCh <- roundResult{serial: serial, err: op(serial)}
			}(serial)
		}

		failed := orderedmap.New[string, error]()
		for range pending.Len() {
			r := <-resultCh
			if r.err == nil {
				results[r.serial] = Outcome{Serial: r.serial, Success: true}
				continue
			}
			results[r.serial] = Outcome{Serial: r.serial, Success: false, Err: r.err}
			var protoErr *ProtocolError
			if errors.As(r.err, &protoErr) {
				continue // fatal: never retried (spec.md §7)
			}
			failed.Set(r.serial, r.err)
		}
		pending = failed

		if pending.Len() == 0 || attempt >= opts.MaxRetries {
			break
		}
		time.Sleep(opts.backoff())
	}

	outcomes := make([]Outcome, len(serials))
	for i, serial := range serials {
		outcomes[i] = results[serial]
	}
	return outcomes
}

func (o RunOptions) backoff() time.Duration {
	if o.Backoff > 0 {
		return o.Backoff
	}
	return 5 * time.Second
}
