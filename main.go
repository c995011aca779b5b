package main

import "github.com/nextlevelbuilder/wabot/cmd"

func main() {
	cmd.Execute()
}
