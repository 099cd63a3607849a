package store

import "fmt"

// Kind classifies a store-facing failure into one of the error kinds spec
// §7 names for the coordination store: Transient (a connection loss or
// expired session; classifying performs no retry, and the Broker's boot
// steps return a Transient failure as fatal without retrying), Contention
// (a NodeExists we didn't expect, resolved by payload comparison), and
// Invariant (a NoNode where the protocol guarantees presence).
type Kind string

const (
	KindTransient  Kind = "Transient"
	KindContention Kind = "Contention"
	KindInvariant  Kind = "Invariant"
)

// Error wraps a Result with the operation and path that produced it and
// the §7 Kind it belongs to, so callers can classify failures with
// errors.As instead of comparing Result values ad hoc.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Res  Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s %s: %s (%s)", e.Op, e.Path, e.Res, e.Kind)
}

// ClassifyMutation turns a failed mutating call's Result into a typed
// Error, or nil if res is OK. NodeExists classifies as Contention;
// ConnectionLoss/SessionExpired as Transient; anything else (most often a
// missing parent, e.g. NoNode on a Create under a path that should already
// exist) as Invariant.
func ClassifyMutation(op, path string, res Result) error {
	if res == OK {
		return nil
	}
	k := KindInvariant
	switch res {
	case ConnectionLoss, SessionExpired:
		k = KindTransient
	case NodeExists:
		k = KindContention
	}
	return &Error{Kind: k, Op: op, Path: path, Res: res}
}

// ClassifyRead turns a failed read's Result into a typed Error the same
// way ClassifyMutation does, except NodeExists never applies to a read.
func ClassifyRead(op, path string, res Result) error {
	if res == OK {
		return nil
	}
	k := KindInvariant
	if res == ConnectionLoss || res == SessionExpired {
		k = KindTransient
	}
	return &Error{Kind: k, Op: op, Path: path, Res: res}
}
