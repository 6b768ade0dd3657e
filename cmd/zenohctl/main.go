// zenohctl is a CLI that scrapes a running zenohd daemon's Prometheus
// metrics endpoint to report session state.
package main

import "github.com/gabrik/zenoh-pico-go/cmd/zenohctl/commands"

func main() {
	commands.Execute()
}
