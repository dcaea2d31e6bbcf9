// Package viz renders sweeps in the terminal.
//
// It provides the lipgloss styles shared by the command line output, a
// Bubble Tea progress view that follows a running sweep cell by cell, and
// ASCII line plots of saved results.
//
// # Progress view
//
//	RunWithProgress(ctx, "CO 1-0", "T_R", total, func(ctx context.Context, obs sweep.Observer) error {
//		...
//	})
//
// The view quits on its own once the sweep returns. Ctrl+C or q cancels the
// sweep's context.
package viz
