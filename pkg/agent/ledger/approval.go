package ledger

import (
	"context"
	"fmt"

	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/project"
)

// ApproveAll commits every pending change. The ledger is emptied before any
// callback runs. A failing callback is logged and recorded in the report;
// the remaining changes are still committed.
func (l *Ledger) ApproveAll(ctx context.Context) Report {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	snapshot := l.snapshotLocked()
	report := Report{SessionID: l.sessionID}
	l.resetLocked()
	l.state = StateApproving
	l.mu.Unlock()

	l.logger.Info(module, "Approving pending changes", map[string]interface{}{
		"sessionId": report.SessionID,
		"count":     len(snapshot),
	})

	for _, c := range snapshot {
		if err := l.commit(ctx, c); err != nil {
			report.Failures = append(report.Failures, err.Error())
			l.logger.Error(module, "Failed to commit change", map[string]interface{}{
				"entityId": c.EntityID,
				"kind":     c.Kind,
				"error":    err.Error(),
			})
		}
		countChange(&report, c)
	}

	l.close()
	l.events.Emit(events.New(events.AllChangesApproved, reportPayload(report)))
	return report
}

// RejectAll reverts every pending change, newest first: adds are removed,
// updates restore the original state and deletes re-insert it. Reverting in
// reverse lets a restored track come back before the note changes made on
// it are undone.
func (l *Ledger) RejectAll(ctx context.Context) Report {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	snapshot := l.snapshotLocked()
	report := Report{SessionID: l.sessionID}
	l.state = StateRejecting
	l.mu.Unlock()

	l.logger.Info(module, "Rejecting pending changes", map[string]interface{}{
		"sessionId": report.SessionID,
		"count":     len(snapshot),
	})

	for i := len(snapshot) - 1; i >= 0; i-- {
		c := snapshot[i]
		if err := l.revert(ctx, c); err != nil {
			report.Failures = append(report.Failures, err.Error())
			l.logger.Error(module, "Failed to revert change", map[string]interface{}{
				"entityId": c.EntityID,
				"kind":     c.Kind,
				"error":    err.Error(),
			})
		}
		countChange(&report, c)
	}

	l.mu.Lock()
	l.resetLocked()
	l.mu.Unlock()
	l.close()
	l.events.Emit(events.New(events.AllChangesRejected, reportPayload(report)))
	return report
}

func (l *Ledger) close() {
	l.mu.Lock()
	l.state = StateNoSession
	l.sessionID = ""
	l.mu.Unlock()
}

func (l *Ledger) commit(ctx context.Context, c Change) error {
	if c.Type == ChangeDelete {
		return nil
	}

	switch c.Kind {
	case KindTrack:
		pending := false
		patch := project.TrackPatch{IsPending: &pending}
		color := committedColor(c)
		patch.Color = &color
		if err := l.mutator.UpdateTrack(ctx, c.EntityID, patch); err != nil {
			return fmt.Errorf("commit track %s: %w", c.EntityID, err)
		}
	case KindNote:
		if c.NewNote == nil {
			return nil
		}
		note := *c.NewNote
		note.IsPending = false
		if err := l.mutator.ApproveMidiNotes(ctx, c.TrackID, []project.Note{note}); err != nil {
			return fmt.Errorf("commit note %s: %w", c.EntityID, err)
		}
	}
	return nil
}

// committedColor is the colour a track keeps once its provisional marker is
// removed: the colour the change asked for, else the one it had before, else
// the default.
func committedColor(c Change) string {
	for _, t := range []*project.Track{c.NewTrack, c.OriginalTrack} {
		if t != nil && t.Color != "" && t.Color != project.PendingColor {
			return t.Color
		}
	}
	return project.DefaultColor
}

func (l *Ledger) revert(ctx context.Context, c Change) error {
	switch c.Kind {
	case KindTrack:
		return l.revertTrack(ctx, c)
	case KindNote:
		return l.revertNote(ctx, c)
	}
	return fmt.Errorf("unknown entity kind %q", c.Kind)
}

func (l *Ledger) revertTrack(ctx context.Context, c Change) error {
	var err error
	switch c.Type {
	case ChangeAdd:
		err = l.mutator.DeleteTrack(ctx, c.EntityID)
	case ChangeUpdate:
		if c.OriginalTrack == nil {
			return fmt.Errorf("revert track %s: no original state", c.EntityID)
		}
		err = l.mutator.UpdateTrack(ctx, c.EntityID, project.PatchFrom(*c.OriginalTrack))
	case ChangeDelete:
		if c.OriginalTrack == nil {
			return fmt.Errorf("revert track %s: no original state", c.EntityID)
		}
		if c.Index != nil {
			err = l.mutator.RestoreTrack(ctx, c.OriginalTrack.Clone(), *c.Index)
		} else {
			_, err = l.mutator.AddTrack(ctx, c.OriginalTrack.Clone())
		}
	}
	if err != nil {
		return fmt.Errorf("revert track %s: %w", c.EntityID, err)
	}
	return nil
}

func (l *Ledger) revertNote(ctx context.Context, c Change) error {
	var err error
	switch c.Type {
	case ChangeAdd:
		err = l.mutator.RejectMidiNotes(ctx, c.TrackID, []string{c.EntityID})
	case ChangeUpdate:
		if c.OriginalNote == nil {
			return fmt.Errorf("revert note %s: no original state", c.EntityID)
		}
		err = l.mutator.UpdateMidiNotes(ctx, c.TrackID, []project.Note{*c.OriginalNote})
	case ChangeDelete:
		if c.OriginalNote == nil {
			return fmt.Errorf("revert note %s: no original state", c.EntityID)
		}
		err = l.mutator.AddMidiNotes(ctx, c.TrackID, []project.Note{*c.OriginalNote})
	}
	if err != nil {
		return fmt.Errorf("revert note %s: %w", c.EntityID, err)
	}
	return nil
}

func countChange(r *Report, c Change) {
	if c.Kind == KindTrack {
		r.Tracks++
	} else {
		r.Notes++
	}
}

func reportPayload(r Report) map[string]interface{} {
	return map[string]interface{}{
		"sessionId": r.SessionID,
		"tracks":    r.Tracks,
		"notes":     r.Notes,
		"failures":  len(r.Failures),
	}
}
