package main

import "github.com/iottest/wifiposition/cmd"

func main() {
	cmd.Execute()
}
