// Gray Logic Valves - self-tuning radiator valve control.
//
// Each configured radiator valve gets its own controller that learns how far
// the valve must open to hold the room at its target temperature. Position
// writes from every controller are serialized through one rate-limited
// actuation queue so battery and duty-cycle limited radios are not flooded.
package main

import (
	"os"

	"github.com/nerrad567/gray-logic-valves/cmd/graylogic-valves/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
