package floorplan

import (
	"context"
	"errors"
	"log"
	"time"
)

// SelectionIDBuilder produces opaque selection identities from row context
type SelectionIDBuilder interface {
	// ForTableRow builds an identity from the table row itself
	ForTableRow(snap *Snapshot, row int) (SelectionID, error)
	// ForCategory builds an identity from a category column value
	ForCategory(snap *Snapshot, column, row int) (SelectionID, error)
}

// SelectionHost is the host's selection/cross-filter manager
type SelectionHost interface {
	NewSelectionIDBuilder() SelectionIDBuilder
	Select(ctx context.Context, id SelectionID) error
}

var errPanicked = errors.New("panic recovered")

// selectTimeout bounds a fire-and-forget selection call
const selectTimeout = 5 * time.Second

// ResolveSelectionID asks the host for an identity for the given row, trying
// the table-row builder first and the category builder second. Any failure,
// including a panic inside the host, yields nil.
func ResolveSelectionID(host SelectionHost, snap *Snapshot, row int) (id SelectionID) {
	if host == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			id = nil
		}
	}()

	builder := host.NewSelectionIDBuilder()
	if builder == nil {
		return nil
	}

	if id, err := tryBuild(func() (SelectionID, error) { return builder.ForTableRow(snap, row) }); err == nil && id != nil {
		return id
	}

	column := 0
	if snap != nil {
		if roles := ResolveRoles(snap.Columns); roles.FieldNumber >= 0 {
			column = roles.FieldNumber
		}
	}
	if id, err := tryBuild(func() (SelectionID, error) { return builder.ForCategory(snap, column, row) }); err == nil && id != nil {
		return id
	}
	return nil
}

// tryBuild isolates one builder call so a panic in the first strategy still
// lets the second one run.
func tryBuild(fn func() (SelectionID, error)) (id SelectionID, err error) {
	defer func() {
		if r := recover(); r != nil {
			id, err = nil, errPanicked
		}
	}()
	return fn()
}

// selectAsync hands an identity to the host without waiting for the result.
// Errors and panics are logged and dropped.
func selectAsync(host SelectionHost, id SelectionID) {
	if host == nil || id == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SELECT] host select panicked: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), selectTimeout)
		defer cancel()
		if err := host.Select(ctx, id); err != nil {
			log.Printf("[SELECT] host select failed: %v", err)
		}
	}()
}
