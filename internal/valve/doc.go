// Package valve implements the self-tuning radiator valve controller.
//
// One Controller drives one physical valve. Every tick it samples the room
// thermostat and the valve, computes a felt temperature and an error
// against the target, and then, in priority order:
//
//   - Boost: the thermostat is in boost mode, open to 80 and hold
//   - Window open: the valve body is cooling fast or a window sensor has
//     been open for two minutes, close and hold for at least ten minutes
//   - Normal: once per adjust interval, learn calibration and move the
//     valve toward the target, with a cold-start jump when opening from 0
//
// Position writes go through a shared actuation queue; the controller
// never talks to a device transport directly.
//
// # Learning
//
// Each adjusted target temperature has its own calibration entry (see
// package calibration): a felt temperature offset learned by sigmoid-
// weighted smoothing, and a sweet spot position learned from the positions
// that held the room steady.
//
// # Concurrency
//
// A controller's state is only touched by its own tick loop and guarded by
// its mutex for API reads. Peers only see each other through the Registry's
// published diagnostics snapshots.
package valve
