// Package journal persists simulation runs to SQLite: one row per run,
// plus transition events and periodic parameter snapshots keyed to it.
// Writes go through a bounded async queue so recording never stalls the
// cycle loop; a saturated queue drops entries rather than block.
package journal
