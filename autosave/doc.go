// Package autosave debounces session persistence so that rapid message
// updates collapse into a single write. Each session carries its own timer;
// rescheduling replaces the snapshot and resets the timer, so the last
// scheduled state is what gets persisted.
package autosave
