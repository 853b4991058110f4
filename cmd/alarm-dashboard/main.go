package main

import "github.com/oshokin/warehouse-alarms/cmd/alarm-dashboard/cmd"

func main() {
	cmd.Execute()
}
