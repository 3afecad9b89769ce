package main

import "github.com/maxvaer/zrprobe/cmd"

func main() {
	cmd.Execute()
}
