package main

import "github.com/mselser95/pm-endgame/cmd"

func main() {
	cmd.Execute()
}
