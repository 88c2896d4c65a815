package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.klb.dev/clipstash/internal/clip"
	"go.klb.dev/clipstash/internal/item"
	"go.klb.dev/clipstash/internal/message"
	"go.klb.dev/clipstash/internal/state"
)

// errBadRequest marks malformed control requests.
var errBadRequest = errors.New("bad request")

// Handle executes one control request and returns its response.
func (d *Daemon) Handle(ctx context.Context, req *message.Message) *message.Message {
	resp, err := d.handle(ctx, req)
	if err != nil {
		userFacing := state.IsUserFacing(err) ||
			errors.Is(err, errBadRequest) ||
			errors.Is(err, clip.ErrUnsupported)
		if !userFacing {
			d.log.Warn("ipc request failed", "type", req.Type, "err", err)
		}
		return message.Failure(err, userFacing)
	}
	return resp
}

func (d *Daemon) handle(ctx context.Context, req *message.Message) (*message.Message, error) {
	resp := message.OK()
	switch req.Type {
	case message.TypeList:
		history := d.coord.History()
		if req.Limit > 0 && req.Limit < len(history) {
			history = history[:req.Limit]
		}
		resp.Entries = make([]message.Entry, 0, len(history))
		for _, it := range history {
			resp.Entries = append(resp.Entries, message.EntryOf(it))
		}

	case message.TypePins:
		pins := d.coord.Pinned()
		resp.Entries = make([]message.Entry, 0, len(pins))
		for _, p := range pins {
			resp.Entries = append(resp.Entries, message.PinnedEntryOf(p))
		}

	case message.TypePin:
		it, err := d.find(req.ID)
		if err != nil {
			return nil, err
		}
		pinned, err := d.coord.TogglePin(ctx, it)
		if err != nil {
			return nil, err
		}
		resp.Pinned = &pinned

	case message.TypeDelete:
		if req.ID == "" {
			return nil, fmt.Errorf("%w: missing id", errBadRequest)
		}
		if err := d.coord.DeleteItem(ctx, req.ID); err != nil {
			return nil, err
		}

	case message.TypeClear:
		if err := d.coord.ClearHistory(ctx); err != nil {
			return nil, err
		}

	case message.TypeSettingsGet:
		s := d.coord.Settings()
		resp.Settings = &s

	case message.TypeSettingsSet:
		if req.Settings == nil {
			return nil, fmt.Errorf("%w: missing settings", errBadRequest)
		}
		if err := d.coord.SaveSettings(ctx, *req.Settings); err != nil {
			return nil, err
		}
		s := d.coord.Settings()
		resp.Settings = &s

	case message.TypeRestore:
		it, err := d.find(req.ID)
		if err != nil {
			return nil, err
		}
		w, ok := d.clip.(clip.Writer)
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot write", clip.ErrUnsupported, d.clip.Name())
		}
		if err := w.Write(it); err != nil {
			return nil, fmt.Errorf("restore %s: %w", it.ID, err)
		}

	case message.TypeStatus:
		resp.Status = d.status()

	default:
		return nil, fmt.Errorf("%w: unknown request type %q", errBadRequest, req.Type)
	}
	return resp, nil
}

func (d *Daemon) find(id string) (item.Item, error) {
	if id == "" {
		return item.Item{}, fmt.Errorf("%w: missing id", errBadRequest)
	}
	return d.coord.Find(id)
}

func (d *Daemon) status() *message.Status {
	s := d.coord.Settings()
	return &message.Status{
		Version:       d.cfg.Version,
		PID:           os.Getpid(),
		StartedAt:     d.started,
		Store:         d.cfg.Store,
		DataDir:       d.cfg.DataDir,
		Encrypted:     d.cipher != nil,
		RuntimeActive: d.coord.RuntimeActive(),
		History:       len(d.coord.History()),
		HistoryLimit:  s.EffectiveHistoryLimit(),
		Pinned:        len(d.coord.Pinned()),
		Incognito:     s.Incognito,
		Monitor:       d.mon.Stats(),
		Degraded:      d.degradedList(),
	}
}
