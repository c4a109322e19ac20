package main

import (
	"context"
	"fmt"
	"io"

	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/agent/executor"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/agent/pipeline"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/llm/scripted"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	phaseColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	noteColor    = color.New(color.FgYellow)
)

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var scenarioPath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scripted Sense/Plan/Act run against an in-memory project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), s, opts)
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "Scenario YAML file")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func runSimulation(ctx context.Context, out io.Writer, s scenario, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.logger()

	engine := rag.NewEngine(rag.DefaultConfig(), embedding.NewHashEmbedder(0), log)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	mem := memory.NewManager(memory.DefaultConfig(), log)
	mem.StartSession("")

	store := project.NewStore(s.Project.info(), s.Project.tracks()...)
	approvals := ledger.New(store, log)
	exec := executor.New(store, approvals, engine, log, executor.WithRecorder(mem))
	asm := assembler.New(assembler.DefaultConfig(), mem, engine, log)
	provider := scripted.NewProvider(
		scripted.Text(s.Responses.Sense),
		scripted.Text(s.Responses.Plan),
		scripted.Text(s.Responses.Act),
	)
	orch := pipeline.New(pipeline.Config{Model: "scripted", AutoApprove: s.AutoApprove},
		provider, asm, approvals, exec, log, pipeline.WithRecorder(mem))

	bus := events.NewDispatcher()
	bus.Forward(orch.Events())
	bus.Forward(exec.Events())
	bus.Forward(approvals.Events())
	bus.Subscribe(func(e events.Event) { printEvent(out, e) })

	actx := agent.Context{ProjectInfo: store.Info(), ExistingTracks: store.Tracks()}
	if t, ok := store.Track(s.CurrentTrackID); ok {
		actx.CurrentTrack = &t
	}

	fmt.Fprintf(out, "Prompt: %s\n", s.Prompt)
	result, runErr := orch.StreamAgentAction(ctx, pipeline.Request{Prompt: s.Prompt, Context: actx})
	printResult(out, result, runErr)
	if runErr != nil {
		return runErr
	}

	if approvals.HasPendingChanges() {
		view := approvals.View()
		noteColor.Fprintf(out, "Pending changes: %d (session %s)\n", len(view.Changes), view.SessionID)
		switch s.Decision {
		case "approve":
			printReport(out, "Approved", approvals.ApproveAll(ctx))
		case "reject":
			printReport(out, "Rejected", approvals.RejectAll(ctx))
		}
	}

	fmt.Fprintln(out, "Tracks:")
	for _, t := range store.Tracks() {
		marker := ""
		if t.IsPending {
			marker = " (pending)"
		}
		fmt.Fprintf(out, "  - %s [%s] %d notes%s\n", t.Name, t.Type, len(t.Notes), marker)
	}
	return nil
}

func printEvent(out io.Writer, e events.Event) {
	p := e.Payload()
	switch e.EventType() {
	case events.SensePhaseDone, events.PlanPhaseDone, events.ActPhaseDone:
		phaseColor.Fprintf(out, "[%s]\n", e.EventType())
	case events.ActionExecuted:
		successColor.Fprintf(out, "  ok    %s\n", actionName(p["action"]))
	case events.ActionError:
		failColor.Fprintf(out, "  error %s: %v\n", actionName(p["action"]), p["error"])
	case events.StreamingError:
		failColor.Fprintf(out, "[%s] %v\n", e.EventType(), p["error"])
	}
}

func actionName(v interface{}) string {
	if a, ok := v.(agent.Action); ok {
		return a.Type
	}
	return fmt.Sprint(v)
}

func printResult(out io.Writer, r agent.Result, err error) {
	if err != nil || !r.Success {
		msg := r.Error
		if err != nil {
			msg = err.Error()
		}
		failColor.Fprintf(out, "Run failed: %s\n", msg)
		return
	}
	successColor.Fprintf(out, "Summary: %s\n", r.Summary)
	if r.NextSteps != "" {
		fmt.Fprintf(out, "Next steps: %s\n", r.NextSteps)
	}
	if len(r.Dropped) > 0 {
		noteColor.Fprintf(out, "Dropped %d invalid action(s)\n", len(r.Dropped))
	}
}

func printReport(out io.Writer, verb string, r ledger.Report) {
	fmt.Fprintf(out, "%s: %d track change(s), %d note change(s)\n", verb, r.Tracks, r.Notes)
	for _, f := range r.Failures {
		failColor.Fprintf(out, "  failed: %s\n", f)
	}
}
