// Package replay re-executes a recorded replay log against a starting park
// and checks every outcome against what was recorded.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
)

var ErrNotReplayMode = errors.New("replay: dispatcher is not in replay mode")

type Options struct {
	// After skips entries already contained in the starting park, e.g. a
	// snapshot taken at that seq.
	After uint32
	// StopOnMismatch ends the run at the first divergence.
	StopOnMismatch bool
}

type Mismatch struct {
	Seq   uint32
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("seq %d: %s want %s got %s", m.Seq, m.Field, m.Want, m.Got)
}

type Report struct {
	Applied    int
	Failed     int
	Skipped    int
	LastSeq    uint32
	LastTick   uint32
	Digest     string
	Mismatches []Mismatch
}

func (r Report) OK() bool { return len(r.Mismatches) == 0 }

// Run submits each entry to d as a replay action from the server actor.
// Entries keep their recorded player, tick and seq.
func Run(ctx context.Context, d *dispatch.Dispatcher, entries []dispatch.ReplayEntry, opt Options) (Report, error) {
	var rep Report
	if d.Mode() != dispatch.ModeReplay {
		return rep, ErrNotReplayMode
	}
	ctx, span := otel.Tracer("parkcraft.ai/internal/sim/replay").Start(ctx, "replay.Run")
	defer span.End()
	log := logrus.WithField("component", "replay")

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if e.Seq <= opt.After {
			rep.Skipped++
			continue
		}
		a, err := d.Registry().Decode(action.Kind(e.Kind), e.Params)
		if err != nil {
			span.SetStatus(codes.Error, "decode")
			return rep, fmt.Errorf("seq %d: %w", e.Seq, err)
		}
		a.SetCommand(a.Command() | action.CmdReplay)

		d.Resume(e.Seq-1, e.Tick)
		r := d.Submit(ctx, a, nil)
		if r.OK() {
			rep.Applied++
		} else {
			rep.Failed++
		}
		rep.LastSeq, rep.LastTick = e.Seq, e.Tick

		n := len(rep.Mismatches)
		rep.Mismatches = append(rep.Mismatches, compare(e, r, d)...)
		if len(rep.Mismatches) > n {
			for _, m := range rep.Mismatches[n:] {
				log.Warn(m.String())
			}
			if opt.StopOnMismatch {
				break
			}
		}
	}
	rep.Digest = d.Digest()
	span.SetAttributes(
		attribute.Int("replay.applied", rep.Applied),
		attribute.Int("replay.failed", rep.Failed),
		attribute.Int("replay.mismatches", len(rep.Mismatches)),
	)
	if !rep.OK() {
		span.SetStatus(codes.Error, "replay diverged")
	}
	log.Infof("replayed %d entries (%d failed, %d skipped) up to seq %d, %d mismatches",
		rep.Applied+rep.Failed, rep.Failed, rep.Skipped, rep.LastSeq, len(rep.Mismatches))
	return rep, nil
}

func compare(e dispatch.ReplayEntry, r action.Result, d *dispatch.Dispatcher) []Mismatch {
	var out []Mismatch
	if got := r.Status.String(); got != e.Status {
		out = append(out, Mismatch{Seq: e.Seq, Field: "status", Want: e.Status, Got: got})
	}
	if got := string(r.Message); got != e.Message {
		out = append(out, Mismatch{Seq: e.Seq, Field: "message", Want: e.Message, Got: got})
	}
	if got := int64(r.Cost); r.OK() && got != e.Cost {
		out = append(out, Mismatch{Seq: e.Seq, Field: "cost", Want: strconv.FormatInt(e.Cost, 10), Got: strconv.FormatInt(got, 10)})
	}
	if e.Digest != "" {
		if got := d.Digest(); got != e.Digest {
			out = append(out, Mismatch{Seq: e.Seq, Field: "digest", Want: e.Digest, Got: got})
		}
	}
	return out
}
