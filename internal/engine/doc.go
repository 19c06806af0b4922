// Package engine runs the cycle loop that drives simulated devices.
//
// A cycle measures the wall-clock time since the previous cycle, scales
// it by the speed factor and processes every device with the resulting
// simulated delta. Cycles are never skipped or batched: slow wall-clock
// periods simply produce larger deltas. Pausing freezes simulated time
// entirely, so the first cycle after a resume carries only the time
// elapsed since the resume.
package engine
