// Package selection derives the active signer from the persisted address
// preference and the live signer list.
package selection

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/prefs"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Preferences is the persisted selection.
type Preferences interface {
	SelectedAddress() (string, error)
	SetSelectedAddress(address string) error
}

// Resolve returns a clone of the signer whose address equals pref, the
// first signer when none matches, or nil for an empty list.
func Resolve(pref string, list []*types.Signer) *types.Signer {
	if len(list) == 0 {
		return nil
	}
	if s := types.FindSigner(list, pref); s != nil {
		return s.Clone()
	}
	return list[0].Clone()
}

// Tracker publishes the selected signer.
type Tracker struct {
	prefs   Preferences
	signers *stream.Feed[[]*types.Signer]
	logger  zerolog.Logger

	selectCh chan string
	done     chan struct{}
	out      *stream.Feed[*types.Signer]

	// Owned by Run.
	pref      string
	seeded    bool
	list      []*types.Signer
	haveList  bool
	persisted string
}

// New creates a tracker over the merged signer feed.
func New(p Preferences, signers *stream.Feed[[]*types.Signer], logger zerolog.Logger) *Tracker {
	return &Tracker{
		prefs:    p,
		signers:  signers,
		logger:   logger,
		selectCh: make(chan string, 8),
		done:     make(chan struct{}),
		out:      stream.NewFeed[*types.Signer](),
	}
}

// Selected returns the feed of selected signers. A nil value means no
// signer is available.
func (t *Tracker) Selected() *stream.Feed[*types.Signer] {
	return t.out
}

// Select sets the preferred address.
func (t *Tracker) Select(address string) {
	select {
	case t.selectCh <- address:
	case <-t.done:
	}
}

// Run reads the persisted preference once and then tracks preference and
// signer list changes until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	defer t.out.Close()
	defer close(t.done)

	t.seed()

	sub := t.signers.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr := <-t.selectCh:
			t.handleSelect(addr)
		case list, ok := <-sub.C():
			if !ok {
				return nil
			}
			t.handleList(list)
		}
	}
}

func (t *Tracker) seed() {
	addr, err := t.prefs.SelectedAddress()
	switch {
	case err == nil:
		t.pref, t.seeded = addr, true
		t.persisted = addr
	case errors.Is(err, prefs.ErrNoPreference):
	default:
		t.logger.Warn().Err(err).Msg("Failed to read selected address")
	}
}

func (t *Tracker) handleSelect(addr string) {
	t.seeded = true
	if addr == t.pref {
		return
	}
	t.pref = addr
	if t.haveList {
		t.publish()
	}
}

func (t *Tracker) handleList(list []*types.Signer) {
	if !t.seeded && len(list) > 0 {
		t.pref, t.seeded = list[0].Address, true
	}
	t.list = list
	t.haveList = true
	t.publish()
}

func (t *Tracker) publish() {
	s := Resolve(t.pref, t.list)
	if s != nil && s.Address != t.persisted {
		if err := t.prefs.SetSelectedAddress(s.Address); err != nil {
			t.logger.Warn().Err(err).Str("address", s.Address).Msg("Failed to persist selected address")
		} else {
			t.persisted = s.Address
		}
	}
	t.out.Send(s)
}
