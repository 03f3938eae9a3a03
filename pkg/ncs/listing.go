package ncs

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/NickHugi/PyKotor-sub008/pkg/nss"
	"github.com/pkg/errors"
)

// ListingOption configures WriteListing.
type ListingOption func(*lister)

type lister struct {
	actions *nss.Actions
}

// WithRoutineNames annotates ACTION instructions with routine names.
func WithRoutineNames(t *nss.Actions) ListingOption {
	return func(l *lister) { l.actions = t }
}

// WriteListing writes one line per instruction: offset, mnemonic, operands.
// Jump targets get a label line of their own.
func (p *Program) WriteListing(w io.Writer, opts ...ListingOption) error {
	var l lister
	for _, opt := range opts {
		opt(&l)
	}

	targets := make(map[int]bool)
	for _, ins := range p.Code {
		if ins.Op.IsJump() {
			targets[ins.Target()] = true
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ins := range p.Code {
		if targets[ins.Offset] {
			fmt.Fprintf(tw, "loc_%08X:\n", ins.Offset)
		}
		comment := ""
		if ins.Op == OpAction && l.actions != nil {
			if a, ok := l.actions.ByID(int(ins.Int)); ok {
				comment = "; " + a.Name
			}
		}
		ops := ins.Operands()
		if ins.Op.IsJump() {
			ops = fmt.Sprintf("loc_%08X", ins.Target())
		}
		fmt.Fprintf(tw, "  %08X\t%s\t%s\t%s\n", ins.Offset, ins.Mnemonic(), ops, comment)
	}
	if targets[p.End()] {
		fmt.Fprintf(tw, "loc_%08X:\n", p.End())
	}
	return errors.Wrap(tw.Flush(), "write listing")
}
